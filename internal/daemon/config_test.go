package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 18732 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 18732)
	}
	if cfg.P2P.ListenPort != 9732 {
		t.Errorf("P2P.ListenPort = %d, want %d", cfg.P2P.ListenPort, 9732)
	}
	if cfg.P2P.PeersLow != 10 || cfg.P2P.PeersHigh != 60 {
		t.Errorf("peer band = [%d..%d], want [10..60]", cfg.P2P.PeersLow, cfg.P2P.PeersHigh)
	}
	if len(cfg.P2P.BootstrapPeers) == 0 {
		t.Error("default config should carry at least one bootstrap endpoint")
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("TESSERA_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.P2P.PeersLow != DefaultConfig().P2P.PeersLow {
		t.Errorf("PeersLow = %d, want default %d", cfg.P2P.PeersLow, DefaultConfig().P2P.PeersLow)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TESSERA_HOME", home)

	raw := `
[p2p]
peers_low = 2
peers_high = 8
bootstrap_peers = ["seed.local"]

[api]
port = 19000
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(raw), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.P2P.PeersLow != 2 || cfg.P2P.PeersHigh != 8 {
		t.Errorf("peer band = [%d..%d], want [2..8]", cfg.P2P.PeersLow, cfg.P2P.PeersHigh)
	}
	if len(cfg.P2P.BootstrapPeers) != 1 || cfg.P2P.BootstrapPeers[0] != "seed.local" {
		t.Errorf("BootstrapPeers = %v, want [seed.local]", cfg.P2P.BootstrapPeers)
	}
	if cfg.API.Port != 19000 {
		t.Errorf("API.Port = %d, want 19000", cfg.API.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want default", cfg.API.Host)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("TESSERA_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.P2P.PeersLow = 4
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.P2P.PeersLow != 4 {
		t.Errorf("PeersLow = %d, want 4", loaded.P2P.PeersLow)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"3s", 3 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"", 10 * time.Second},       // Default
		{"potato", 10 * time.Second}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseDuration(tt.input, 10*time.Second)
			if got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTesseraHome_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TESSERA_HOME", dir)

	if got := TesseraHome(); got != dir {
		t.Errorf("TesseraHome() = %q, want %q", got, dir)
	}
}
