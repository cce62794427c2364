// Package p2p implements the peer-membership and connection-admission
// core of a Tessera node. A single Manager owns the live peer registry
// and the candidate pool, keeps the registry inside a configured
// [low..high] band, bootstraps from DNS when it knows nobody, and folds
// peer lifecycle and gossip events into its state.
//
// Concurrency model: one goroutine (Run) is the only writer. Lifecycle
// and gossip events arrive on one channel and are processed strictly in
// order; the admission check runs on a timer and after any mutation
// that can change the accept/evict decision. A mutex makes the state
// readable from the API without handing out write access.
package p2p

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/tessera-network/tessera/internal/infra/metrics"
)

// DefaultPort is the well-known Tessera p2p port. Bootstrap DNS results
// are stamped with it regardless of what the record implies.
const DefaultPort uint16 = 9732

const (
	// DefaultWarmupDelay is how long the manager waits after start
	// before the first admission check.
	DefaultWarmupDelay = 3 * time.Second
	// DefaultCheckInterval is the period between admission checks.
	DefaultCheckInterval = 10 * time.Second
)

// ResolveFunc turns symbolic bootstrap endpoints into concrete
// addresses. Implementations must tolerate partial failure and may
// return an empty slice; the manager simply retries on a later cycle.
type ResolveFunc func(ctx context.Context, endpoints []string) []netip.AddrPort

// Config configures a Manager.
type Config struct {
	Threshold      Threshold
	BootstrapPeers []string // symbolic DNS endpoints, used only when the registry is empty
	WarmupDelay    time.Duration
	CheckInterval  time.Duration
}

// Manager is the admission controller plus event ingestion for peer
// membership. One instance exists per node process.
type Manager struct {
	cfg     Config
	network Network
	resolve ResolveFunc

	mu         sync.RWMutex
	peers      map[string]Peer             // identity -> handle, currently-connected peers
	candidates map[netip.AddrPort]struct{} // known but not connected, not yet dialed

	events chan event

	onPeerUp   func(id string)
	onPeerDown func(id string)
	onEvict    func(id string)
}

// NewManager builds a Manager. The network collaborator and resolver
// are required; a zero Threshold (low=high=0) is legal and means
// "hold no peers".
func NewManager(cfg Config, network Network, resolve ResolveFunc) (*Manager, error) {
	if network == nil {
		return nil, fmt.Errorf("p2p: network collaborator is required")
	}
	if resolve == nil {
		return nil, fmt.Errorf("p2p: resolver is required")
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = DefaultWarmupDelay
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	return &Manager{
		cfg:        cfg,
		network:    network,
		resolve:    resolve,
		peers:      make(map[string]Peer),
		candidates: make(map[netip.AddrPort]struct{}),
		events:     make(chan event, 128),
	}, nil
}

// OnPeerUp registers a callback invoked after a peer joins the registry.
func (m *Manager) OnPeerUp(fn func(id string)) { m.onPeerUp = fn }

// OnPeerDown registers a callback invoked after a peer leaves the registry.
func (m *Manager) OnPeerDown(fn func(id string)) { m.onPeerDown = fn }

// OnEvict registers a callback invoked when the manager asks the
// network to shed a peer. The registry entry stays until the matching
// termination event arrives.
func (m *Manager) OnEvict(fn func(id string)) { m.onEvict = fn }

// ─── Event intake ───────────────────────────────────────────────────────────
// Safe to call from any goroutine; events are queued for the run loop.

// PeerConnected reports that a dialed or inbound connection finished
// its setup and is now a live peer.
func (m *Manager) PeerConnected(p Peer) {
	m.events <- peerUpEvent{peer: p}
}

// PeerDisconnected reports that a tracked peer's connection ended, for
// any reason: remote close, error, or an eviction we asked for.
func (m *Manager) PeerDisconnected(id string) {
	m.events <- peerDownEvent{id: id}
}

// AdvertiseReceived reports a peer-list advertisement from a remote
// peer. Entries are raw strings; unparseable ones are discarded.
func (m *Manager) AdvertiseReceived(from string, addrs []string) {
	m.events <- advertiseEvent{from: from, addrs: addrs}
}

// ─── Run loop ───────────────────────────────────────────────────────────────

// Run owns all state mutation until ctx is cancelled. The first
// admission check fires after the warm-up delay, then every check
// interval; event ingestion may trigger additional checks in between.
func (m *Manager) Run(ctx context.Context) error {
	log.Printf("[p2p] manager started, threshold %s, %d bootstrap endpoints",
		m.cfg.Threshold, len(m.cfg.BootstrapPeers))

	warmup := time.NewTimer(m.cfg.WarmupDelay)
	defer warmup.Stop()

	var ticker *time.Ticker
	var tick <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if ticker != nil {
				ticker.Stop()
			}
			log.Printf("[p2p] manager stopped")
			return ctx.Err()

		case <-warmup.C:
			m.checkPeerCount(ctx)
			ticker = time.NewTicker(m.cfg.CheckInterval)
			tick = ticker.C

		case <-tick:
			m.checkPeerCount(ctx)

		case ev := <-m.events:
			m.handleEvent(ctx, ev)
		}
	}
}

// handleEvent folds one inbound event into the registry / candidate
// pool. Runs only on the loop goroutine.
func (m *Manager) handleEvent(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case peerUpEvent:
		m.handlePeerUp(ev.peer)

	case peerDownEvent:
		// A termination can drop us below the low-water mark, so a
		// confirmed removal re-checks immediately instead of waiting
		// for the next tick.
		if m.handlePeerDown(ev.id) {
			m.checkPeerCount(ctx)
		}

	case advertiseEvent:
		m.handleAdvertise(ev.from, ev.addrs)
		m.checkPeerCount(ctx)

	default:
		// Unknown event kinds are ignored.
	}
}

func (m *Manager) handlePeerUp(p Peer) {
	id := p.ID()

	m.mu.Lock()
	m.peers[id] = p
	// Keep the pool invariant: a connected peer is not a candidate.
	if ap, err := netip.ParseAddrPort(id); err == nil {
		delete(m.candidates, ap)
	}
	n := len(m.peers)
	m.mu.Unlock()

	log.Printf("[p2p] peer connected: %s (%d total)", id, n)
	m.publishGauges()
	if m.onPeerUp != nil {
		m.onPeerUp(id)
	}
}

// handlePeerDown removes the peer if tracked and reports whether a
// removal actually occurred. Terminations for unknown identities are
// no-ops and must not trigger a re-check.
func (m *Manager) handlePeerDown(id string) bool {
	m.mu.Lock()
	_, tracked := m.peers[id]
	if tracked {
		delete(m.peers, id)
	}
	n := len(m.peers)
	m.mu.Unlock()

	if !tracked {
		return false
	}

	log.Printf("[p2p] peer terminated: %s (%d remaining)", id, n)
	m.publishGauges()
	if m.onPeerDown != nil {
		m.onPeerDown(id)
	}
	return true
}

func (m *Manager) handleAdvertise(from string, addrs []string) {
	parsed := make([]netip.AddrPort, 0, len(addrs))
	for _, raw := range addrs {
		ap, err := netip.ParseAddrPort(raw)
		if err != nil {
			// Malformed entries never fail the batch.
			metrics.MalformedGossipTotal.Inc()
			continue
		}
		parsed = append(parsed, ap)
	}

	added := m.mergeCandidates(parsed)
	metrics.AdvertisesTotal.Inc()
	log.Printf("[p2p] advertise from %s: %d entries, %d new candidates", from, len(addrs), added)
}

// mergeCandidates adds still-unknown addresses to the pool with set
// semantics and returns how many were actually new.
func (m *Manager) mergeCandidates(addrs []netip.AddrPort) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, ap := range addrs {
		if _, connected := m.peers[ap.String()]; connected {
			continue
		}
		if _, known := m.candidates[ap]; known {
			continue
		}
		m.candidates[ap] = struct{}{}
		added++
	}
	if added > 0 {
		metrics.CandidatePoolSize.Set(float64(len(m.candidates)))
	}
	return added
}

// ─── Admission control ──────────────────────────────────────────────────────

// checkPeerCount is one admission cycle: compare the registry size
// against the threshold and dial, shed, or do nothing. Best-effort; any
// failure here is retried on the next tick.
func (m *Manager) checkPeerCount(ctx context.Context) {
	m.mu.RLock()
	n := len(m.peers)
	m.mu.RUnlock()

	switch {
	case n < m.cfg.Threshold.Low():
		log.Printf("[p2p] peer count too low: have %d, want at least %d", n, m.cfg.Threshold.Low())
		m.discoverPeers(ctx, n)
		m.dialCandidates(m.cfg.Threshold.Low() - n)

	case n > m.cfg.Threshold.High():
		excess := n - m.cfg.Threshold.High()
		log.Printf("[p2p] peer count too high: have %d, limit %d, shedding %d", n, m.cfg.Threshold.High(), excess)
		m.evictPeers(excess)
	}
}

// discoverPeers grows the candidate pool. With zero peers the only
// option is DNS bootstrap; with at least one peer it is cheaper to ask
// the peers we have to re-advertise than to hit DNS again.
func (m *Manager) discoverPeers(ctx context.Context, have int) {
	if have == 0 {
		log.Printf("[p2p] registry empty, resolving bootstrap endpoints %v", m.cfg.BootstrapPeers)
		resolved := m.resolve(ctx, m.cfg.BootstrapPeers)
		added := m.mergeCandidates(resolved)
		log.Printf("[p2p] bootstrap resolved %d addresses, %d new candidates", len(resolved), added)
		return
	}

	m.mu.RLock()
	handles := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		handles = append(handles, p)
	}
	m.mu.RUnlock()

	for _, p := range handles {
		if err := p.RequestPeers(); err != nil {
			log.Printf("[p2p] re-advertise request to %s failed: %v", p.ID(), err)
		}
	}
	metrics.ReadvertiseRequestsTotal.Add(float64(len(handles)))
}

// dialCandidates issues up to need fire-and-forget connect requests.
// Candidates are shuffled first so an adversary cannot bias which
// addresses get dialed, and each selected address leaves the pool at
// dial time whether or not the dial eventually succeeds.
func (m *Manager) dialCandidates(need int) {
	if need <= 0 {
		return
	}

	m.mu.Lock()
	pool := make([]netip.AddrPort, 0, len(m.candidates))
	for ap := range m.candidates {
		pool = append(pool, ap)
	}
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if need > len(pool) {
		need = len(pool)
	}
	selected := pool[:need]
	for _, ap := range selected {
		delete(m.candidates, ap)
	}
	metrics.CandidatePoolSize.Set(float64(len(m.candidates)))
	m.mu.Unlock()

	for _, ap := range selected {
		log.Printf("[p2p] dialing candidate %s", ap)
		metrics.DialsTotal.Inc()
		m.network.Connect(ap)
	}
}

// evictPeers asks the network to terminate excess peers. Registry
// entries stay put until the termination events come back, so the
// count only ever changes through event ingestion. Which peers get
// picked is unspecified; map iteration order is as good as any.
func (m *Manager) evictPeers(excess int) {
	m.mu.RLock()
	victims := make([]string, 0, excess)
	for id := range m.peers {
		if len(victims) == excess {
			break
		}
		victims = append(victims, id)
	}
	m.mu.RUnlock()

	for _, id := range victims {
		log.Printf("[p2p] evicting peer %s", id)
		metrics.EvictionsTotal.Inc()
		if m.onEvict != nil {
			m.onEvict(id)
		}
		m.network.Disconnect(id)
	}
}

// Dial issues an out-of-band connect request for one address,
// bypassing the admission cycle. Used by the control plane for manual
// peer injection; like any other dial it is fire-and-forget.
func (m *Manager) Dial(addr netip.AddrPort) {
	m.mu.Lock()
	delete(m.candidates, addr)
	m.mu.Unlock()

	log.Printf("[p2p] manual dial %s", addr)
	metrics.DialsTotal.Inc()
	m.network.Connect(addr)
}

// ─── Read-only queries ──────────────────────────────────────────────────────

// PeerCount returns the number of currently tracked peers.
func (m *Manager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// PeerIDs returns the identities of all tracked peers, sorted.
func (m *Manager) PeerIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CandidateCount returns the size of the candidate pool.
func (m *Manager) CandidateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.candidates)
}

// Candidates returns the candidate pool as sorted address strings.
func (m *Manager) Candidates() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.candidates))
	for ap := range m.candidates {
		out = append(out, ap.String())
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Threshold returns the configured connectivity band.
func (m *Manager) Threshold() Threshold { return m.cfg.Threshold }

func (m *Manager) publishGauges() {
	m.mu.RLock()
	peers := len(m.peers)
	cands := len(m.candidates)
	m.mu.RUnlock()
	metrics.PeersConnected.Set(float64(peers))
	metrics.CandidatePoolSize.Set(float64(cands))
}
