// Package cli implements the Tessera command-line interface using
// Cobra. Each subcommand maps to one node operation (serve, status,
// peers, identity).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-network/tessera/internal/api"
)

var rootCmd = &cobra.Command{
	Use:   "tessera",
	Short: "Tessera — P2P node with threshold-based peer membership",
	Long: `Tessera runs a peer-to-peer node that keeps its connected peer count
inside a configured [low..high] band: DNS bootstrap when it knows nobody,
gossip-fed dialing when under target, eviction when over.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	api.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
