package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tessera-network/tessera/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "API host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveP2PPort, "p2p-port", 0, "P2P port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveP2PPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Tessera node",
	Long:  `Start the p2p layer and the HTTP control API.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveP2PPort > 0 {
		cfg.P2P.ListenPort = serveP2PPort
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	return d.Serve(context.Background())
}
