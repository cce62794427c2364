package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tessera-network/tessera/internal/daemon"
)

// apiGet queries the control API of a locally running node and decodes
// the JSON response into v.
func apiGet(path string, v interface{}) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", cfg.API.Host, cfg.API.Port, path)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
