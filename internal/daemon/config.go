// Package daemon manages the Tessera node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	P2P       P2PConfig       `toml:"p2p"`
	API       APIConfig       `toml:"api"`
	NAT       NATConfig       `toml:"nat"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID string `toml:"id"` // defaults to the identity public key
}

// P2PConfig controls peer membership and the transport listener.
type P2PConfig struct {
	ListenHost     string   `toml:"listen_host"`
	ListenPort     int      `toml:"listen_port"`
	BootstrapPeers []string `toml:"bootstrap_peers"`
	PeersLow       int      `toml:"peers_low"`
	PeersHigh      int      `toml:"peers_high"`
	WarmupDelay    string   `toml:"warmup_delay"`
	CheckInterval  string   `toml:"check_interval"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NATConfig controls UPnP port mapping.
type NATConfig struct {
	UPnP bool `toml:"upnp"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := tesseraHome()
	return Config{
		P2P: P2PConfig{
			ListenHost:     "0.0.0.0",
			ListenPort:     9732,
			BootstrapPeers: []string{"boot.tessera.network"},
			PeersLow:       10,
			PeersHigh:      60,
			WarmupDelay:    "3s",
			CheckInterval:  "10s",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 18732,
		},
		NAT: NATConfig{
			UPnP: false,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "tessera.log"),
		},
	}
}

// LoadConfig reads config from ~/.tessera/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(tesseraHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the config to ~/.tessera/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(tesseraHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// tesseraHome returns the Tessera data directory.
func tesseraHome() string {
	if env := os.Getenv("TESSERA_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tessera")
}

// TesseraHome is exported for use by other packages.
func TesseraHome() string {
	return tesseraHome()
}
