package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-network/tessera/internal/daemon"
	"github.com/tessera-network/tessera/internal/security"
)

func init() {
	rootCmd.AddCommand(identityCmd)
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show this node's identity, creating one on first use",
	RunE:  runIdentity,
}

func runIdentity(cmd *cobra.Command, args []string) error {
	home := daemon.TesseraHome()
	id, err := security.LoadOrCreateIdentity(home)
	if err != nil {
		return err
	}

	fmt.Printf("Node ID: %s\n", id.NodeID())
	fmt.Printf("Keys:    %s/keys\n", home)
	return nil
}
