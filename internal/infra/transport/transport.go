// Package transport is the socket layer the membership core instructs.
// It owns TCP listeners, dialing, the hello exchange, and per-peer
// read/write loops, and feeds lifecycle and gossip events back into an
// EventSink. Connects and disconnects are fire-and-forget: outcomes are
// only ever reported through the sink.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/tessera-network/tessera/internal/infra/metrics"
	"github.com/tessera-network/tessera/internal/p2p"
)

// EventSink receives everything the transport learns: completed peer
// setups, terminations, and peer-list advertisements.
type EventSink interface {
	PeerConnected(p p2p.Peer)
	PeerDisconnected(id string)
	AdvertiseReceived(from string, addrs []string)
}

// Config configures the transport.
type Config struct {
	NodeID           string
	ListenHost       string
	ListenPort       uint16
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// Transport manages all peer sockets for the node.
type Transport struct {
	cfg  Config
	sink EventSink

	mu     sync.RWMutex
	ln     net.Listener
	conns  map[string]*peerConn
	closed bool
}

// New creates a Transport. SetSink must be called before Start.
func New(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	return &Transport{
		cfg:   cfg,
		conns: make(map[string]*peerConn),
	}
}

// SetSink wires the event consumer. Must be set before Start; kept as
// a setter because the sink (the membership core) is constructed with a
// reference back to this transport.
func (t *Transport) SetSink(sink EventSink) { t.sink = sink }

// Start opens the listener and begins accepting inbound peers.
func (t *Transport) Start(ctx context.Context) error {
	if t.sink == nil {
		return fmt.Errorf("transport: no event sink configured")
	}

	addr := net.JoinHostPort(t.cfg.ListenHost, fmt.Sprintf("%d", t.cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", addr, err)
	}

	t.mu.Lock()
	t.ln = ln
	t.closed = false
	t.mu.Unlock()

	log.Printf("[transport] listening on %s", ln.Addr())
	go t.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and every peer connection. Each closed peer
// surfaces as a PeerDisconnected event on the sink.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.closed = true
	ln := t.ln
	conns := make([]*peerConn, 0, len(t.conns))
	for _, p := range t.conns {
		conns = append(conns, p)
	}
	t.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, p := range conns {
		p.close()
	}
	log.Printf("[transport] stopped")
}

// LocalAddr returns the bound listener address, or "" before Start.
func (t *Transport) LocalAddr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

// ─── Outbound ───────────────────────────────────────────────────────────────

// Connect dials the address in the background. Failures are logged and
// counted but never reported back; the membership core treats a dial
// that never becomes a peer as an ordinary missing event.
func (t *Transport) Connect(addr netip.AddrPort) {
	go t.dial(addr)
}

func (t *Transport) dial(addr netip.AddrPort) {
	conn, err := net.DialTimeout("tcp", addr.String(), t.cfg.DialTimeout)
	if err != nil {
		log.Printf("[transport] dial %s failed: %v", addr, err)
		metrics.TransportDialFailures.Inc()
		return
	}
	t.setup(conn, addr.String())
}

// ─── Inbound ────────────────────────────────────────────────────────────────

func (t *Transport) acceptLoop(ctx context.Context) {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed || ctx.Err() != nil {
				return
			}
			log.Printf("[transport] accept failed: %v", err)
			continue
		}
		go t.setup(conn, conn.RemoteAddr().String())
	}
}

// ─── Shared setup ───────────────────────────────────────────────────────────

// setup runs the hello exchange and registers the peer. The identity is
// the dialed address for outbound peers and the remote address for
// inbound ones.
func (t *Transport) setup(conn net.Conn, id string) {
	hello, reader, err := t.handshake(conn)
	if err != nil {
		log.Printf("[transport] handshake with %s failed: %v", id, err)
		metrics.TransportDialFailures.Inc()
		conn.Close()
		return
	}

	p := newPeerConn(t, id, conn, reader, hello)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	if _, dup := t.conns[id]; dup {
		t.mu.Unlock()
		log.Printf("[transport] duplicate connection to %s dropped", id)
		conn.Close()
		return
	}
	t.conns[id] = p
	t.mu.Unlock()

	p.start()
	t.sink.PeerConnected(p)
}

// handshake sends our hello and expects one back before any other
// traffic. Symmetric in both directions.
func (t *Transport) handshake(conn net.Conn) (message, *bufio.Reader, error) {
	deadline := time.Now().Add(t.cfg.HandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return message{}, nil, err
	}

	ours := message{Type: msgHello, NodeID: t.cfg.NodeID, ListenPort: t.cfg.ListenPort}
	data, err := json.Marshal(ours)
	if err != nil {
		return message{}, nil, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return message{}, nil, fmt.Errorf("send hello: %w", err)
	}
	metrics.TransportMessages.WithLabelValues(msgHello, "out").Inc()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return message{}, nil, fmt.Errorf("read hello: %w", err)
	}

	var theirs message
	if err := json.Unmarshal(line, &theirs); err != nil {
		return message{}, nil, fmt.Errorf("decode hello: %w", err)
	}
	if theirs.Type != msgHello {
		return message{}, nil, fmt.Errorf("expected hello, got %q", theirs.Type)
	}
	metrics.TransportMessages.WithLabelValues(msgHello, "in").Inc()

	// Clear the handshake deadline; the read loop blocks indefinitely.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return message{}, nil, err
	}
	return theirs, reader, nil
}

// ─── Lifecycle plumbing ─────────────────────────────────────────────────────

// Disconnect asks for the peer's termination. The registry learns about
// it through the PeerDisconnected event once the read loop exits.
func (t *Transport) Disconnect(id string) {
	t.mu.RLock()
	p := t.conns[id]
	t.mu.RUnlock()
	if p != nil {
		p.close()
	}
}

// dropPeer unregisters a dead connection and reports the termination.
func (t *Transport) dropPeer(p *peerConn) {
	p.close()

	t.mu.Lock()
	current, ok := t.conns[p.id]
	if ok && current == p {
		delete(t.conns, p.id)
	} else {
		ok = false
	}
	t.mu.Unlock()

	if ok {
		t.sink.PeerDisconnected(p.id)
	}
}

// KnownAddrs returns the advertised listen addresses of all connected
// peers. This is what a get_peers request is answered with.
func (t *Transport) KnownAddrs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	addrs := make([]string, 0, len(t.conns))
	for _, p := range t.conns {
		if p.listenAddr != "" {
			addrs = append(addrs, p.listenAddr)
		}
	}
	return addrs
}

// PeerCount returns the number of open peer connections.
func (t *Transport) PeerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
