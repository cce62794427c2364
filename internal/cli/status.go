package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running node's membership status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st struct {
		NodeID     string `json:"node_id"`
		Running    bool   `json:"running"`
		Peers      int    `json:"peers"`
		Candidates int    `json:"candidates"`
		PeersLow   int    `json:"peers_low"`
		PeersHigh  int    `json:"peers_high"`
	}
	if err := apiGet("/api/status", &st); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NODE\t%s\n", shorten(st.NodeID))
	fmt.Fprintf(w, "P2P RUNNING\t%v\n", st.Running)
	fmt.Fprintf(w, "PEERS\t%d (band [%d..%d])\n", st.Peers, st.PeersLow, st.PeersHigh)
	fmt.Fprintf(w, "CANDIDATES\t%d\n", st.Candidates)
	return w.Flush()
}

func shorten(id string) string {
	if len(id) > 16 {
		return id[:16] + "…"
	}
	return id
}
