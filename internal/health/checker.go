// Package health provides periodic health checks for the node: storage
// connectivity, data-dir sanity, and whether the peer registry sits
// inside its configured band.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tessera-network/tessera/internal/infra/metrics"
	"github.com/tessera-network/tessera/internal/infra/sqlite"
	"github.com/tessera-network/tessera/internal/p2p"
)

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a health checker with the standard node checks.
// mgr may be nil when the p2p layer is stopped; the peer-band check
// reports healthy in that case.
func NewChecker(db *sqlite.DB, dataDir string, mgr func() *p2p.Manager) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
			},
			{
				Name: "peer_band",
				CheckFn: func(ctx context.Context) error {
					return checkPeerBand(mgr())
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}

// checkPeerBand flags a registry that sits outside [low..high]. The
// admission controller converges toward the band on its own; the check
// exists so a node stuck at zero peers shows up as unhealthy.
func checkPeerBand(mgr *p2p.Manager) error {
	if mgr == nil {
		return nil // p2p stopped on purpose
	}
	n := mgr.PeerCount()
	th := mgr.Threshold()
	if n < th.Low() {
		return fmt.Errorf("peer count %d below low-water mark %d", n, th.Low())
	}
	if n > th.High() {
		return fmt.Errorf("peer count %d above high-water mark %d", n, th.High())
	}
	return nil
}
