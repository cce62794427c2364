package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	peersCmd.Flags().BoolVar(&peersCandidates, "candidates", false, "List candidate addresses instead of connected peers")
	rootCmd.AddCommand(peersCmd)
}

var peersCandidates bool

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List connected peers of the running node",
	RunE:  runPeers,
}

func runPeers(cmd *cobra.Command, args []string) error {
	if peersCandidates {
		var out struct {
			Count      int      `json:"count"`
			Candidates []string `json:"candidates"`
		}
		if err := apiGet("/api/candidates", &out); err != nil {
			return err
		}
		if out.Count == 0 {
			fmt.Println("No candidate addresses.")
			return nil
		}
		for _, addr := range out.Candidates {
			fmt.Println(addr)
		}
		return nil
	}

	var out struct {
		Count int      `json:"count"`
		Peers []string `json:"peers"`
	}
	if err := apiGet("/api/peers", &out); err != nil {
		return err
	}
	if out.Count == 0 {
		fmt.Println("No connected peers.")
		return nil
	}
	for _, id := range out.Peers {
		fmt.Println(id)
	}
	return nil
}
