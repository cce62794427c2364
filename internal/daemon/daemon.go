package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-network/tessera/internal/api"
	"github.com/tessera-network/tessera/internal/health"
	"github.com/tessera-network/tessera/internal/infra/bootstrap"
	"github.com/tessera-network/tessera/internal/infra/nat"
	"github.com/tessera-network/tessera/internal/infra/sqlite"
	"github.com/tessera-network/tessera/internal/infra/transport"
	"github.com/tessera-network/tessera/internal/p2p"
	"github.com/tessera-network/tessera/internal/security"
)

// Daemon is the core Tessera runtime. It wires together the storage,
// identity, transport, membership, and API layers.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Identity  *security.Identity
	Transport *transport.Transport
	Manager   *p2p.Manager
	Server    *api.Server
	Health    *health.Checker
	RunID     string

	mu      sync.Mutex
	running bool
	p2pStop context.CancelFunc

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	home := tesseraHome()

	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	id, err := security.LoadOrCreateIdentity(home)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load identity: %w", err)
	}

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = id.NodeID()
	}

	// A fresh run ID per process; churn history rows carry it so
	// restarts can be told apart.
	runID := uuid.NewString()
	if err := db.SetNodeInfo("node_id", nodeID); err != nil {
		db.Close()
		return nil, fmt.Errorf("store node id: %w", err)
	}
	if err := db.SetNodeInfo("last_run_id", runID); err != nil {
		db.Close()
		return nil, fmt.Errorf("store run id: %w", err)
	}

	threshold, err := p2p.NewThreshold(cfg.P2P.PeersLow, cfg.P2P.PeersHigh)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid peer threshold: %w", err)
	}

	tp := transport.New(transport.Config{
		NodeID:     nodeID,
		ListenHost: cfg.P2P.ListenHost,
		ListenPort: uint16(cfg.P2P.ListenPort),
	})

	resolver := bootstrap.NewResolver(p2p.DefaultPort, nil)

	mgr, err := p2p.NewManager(p2p.Config{
		Threshold:      threshold,
		BootstrapPeers: cfg.P2P.BootstrapPeers,
		WarmupDelay:    parseDuration(cfg.P2P.WarmupDelay, p2p.DefaultWarmupDelay),
		CheckInterval:  parseDuration(cfg.P2P.CheckInterval, p2p.DefaultCheckInterval),
	}, tp, resolver.Resolve)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create peer manager: %w", err)
	}
	tp.SetSink(mgr)

	d := &Daemon{
		Config:    cfg,
		DB:        db,
		Identity:  id,
		Transport: tp,
		Manager:   mgr,
		RunID:     runID,
	}

	// Membership changes land in the churn log. Log-only on failure;
	// history must never block admission decisions.
	mgr.OnPeerUp(d.recordEvent("connected"))
	mgr.OnPeerDown(d.recordEvent("terminated"))
	mgr.OnEvict(d.recordEvent("evicted"))

	d.Health = health.NewChecker(db, home, func() *p2p.Manager {
		if d.Running() {
			return d.Manager
		}
		return nil
	})

	srv := api.NewServer(mgr, db, d.Health, d, nodeID)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

func (d *Daemon) recordEvent(kind string) func(id string) {
	return func(id string) {
		if err := d.DB.RecordPeerEvent(d.RunID, id, kind); err != nil {
			log.Printf("[daemon] record %s event for %s: %v", kind, id, err)
		}
	}
}

// ─── P2P lifecycle ──────────────────────────────────────────────────────────

// StartP2P brings up the transport listener and the membership loop.
func (d *Daemon) StartP2P() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("p2p layer already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	if d.Config.NAT.UPnP {
		port := uint16(d.Config.P2P.ListenPort)
		go func() {
			if _, err := nat.MapPort(port); err != nil {
				log.Printf("[daemon] upnp mapping skipped: %v", err)
			}
		}()
	}

	if err := d.Transport.Start(ctx); err != nil {
		cancel()
		return err
	}
	go func() {
		_ = d.Manager.Run(ctx)
	}()

	d.p2pStop = cancel
	d.running = true
	log.Printf("[daemon] p2p layer started on %s", d.Transport.LocalAddr())
	return nil
}

// StopP2P tears the p2p layer down. The transport stops first so its
// termination events drain into the still-running membership loop.
func (d *Daemon) StopP2P() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return fmt.Errorf("p2p layer is not running")
	}

	d.Transport.Stop()
	if d.Config.NAT.UPnP {
		nat.UnmapPort(uint16(d.Config.P2P.ListenPort))
	}

	// Give in-flight termination events a moment to be ingested before
	// the loop goes away.
	time.Sleep(100 * time.Millisecond)
	d.p2pStop()
	d.p2pStop = nil
	d.running = false
	log.Printf("[daemon] p2p layer stopped")
	return nil
}

// Running reports whether the p2p layer is up.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// ─── HTTP serving ───────────────────────────────────────────────────────────

// Serve starts the p2p layer and the HTTP server and blocks until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if err := d.StartP2P(); err != nil {
		return fmt.Errorf("start p2p: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if d.Running() {
			_ = d.StopP2P()
		}
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Tessera node serving on http://%s\n", addr)
	fmt.Printf("  P2P: %s, peers %s\n", d.Transport.LocalAddr(), d.Manager.Threshold())
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Running() {
		_ = d.StopP2P()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return v
}
