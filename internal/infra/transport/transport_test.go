package transport

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/tessera-network/tessera/internal/p2p"
)

// chanSink records transport events on channels so tests can wait for
// them without polling.
type chanSink struct {
	connected    chan p2p.Peer
	disconnected chan string
	advertised   chan []string
}

func newChanSink() *chanSink {
	return &chanSink{
		connected:    make(chan p2p.Peer, 8),
		disconnected: make(chan string, 8),
		advertised:   make(chan []string, 8),
	}
}

func (s *chanSink) PeerConnected(p p2p.Peer) { s.connected <- p }

func (s *chanSink) PeerDisconnected(id string) { s.disconnected <- id }

func (s *chanSink) AdvertiseReceived(from string, addrs []string) { s.advertised <- addrs }

func startTransport(t *testing.T, nodeID string) (*Transport, *chanSink) {
	t.Helper()
	sink := newChanSink()
	tp := New(Config{
		NodeID:     nodeID,
		ListenHost: "127.0.0.1",
		ListenPort: 0, // ephemeral
	})
	tp.SetSink(sink)
	if err := tp.Start(context.Background()); err != nil {
		t.Fatalf("Start(%s): %v", nodeID, err)
	}
	t.Cleanup(tp.Stop)
	return tp, sink
}

func localAddrPort(t *testing.T, tp *Transport) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(tp.LocalAddr())
	if err != nil {
		t.Fatalf("ParseAddrPort(%q): %v", tp.LocalAddr(), err)
	}
	return ap
}

func waitPeer(t *testing.T, sink *chanSink, who string) p2p.Peer {
	t.Helper()
	select {
	case p := <-sink.connected:
		return p
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for peer on %s", who)
		return nil
	}
}

func TestTransport_ConnectDeliversPeersBothSides(t *testing.T) {
	ta, sinkA := startTransport(t, "node-a")
	tb, sinkB := startTransport(t, "node-b")

	ta.Connect(localAddrPort(t, tb))

	pa := waitPeer(t, sinkA, "a")
	pb := waitPeer(t, sinkB, "b")

	if pa.ID() == "" || pb.ID() == "" {
		t.Error("peer identities should be non-empty")
	}
	if ta.PeerCount() != 1 || tb.PeerCount() != 1 {
		t.Errorf("peer counts = %d/%d, want 1/1", ta.PeerCount(), tb.PeerCount())
	}
}

func TestTransport_RequestPeersYieldsAdvertise(t *testing.T) {
	ta, sinkA := startTransport(t, "node-a")
	tb, sinkB := startTransport(t, "node-b")

	ta.Connect(localAddrPort(t, tb))
	pa := waitPeer(t, sinkA, "a")
	waitPeer(t, sinkB, "b")

	if err := pa.RequestPeers(); err != nil {
		t.Fatalf("RequestPeers(): %v", err)
	}

	select {
	case <-sinkA.advertised:
		// The reply may be empty; what matters is that it arrives as a
		// gossip event, not as a transport error.
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for advertise reply")
	}
}

func TestTransport_DisconnectSurfacesTermination(t *testing.T) {
	ta, sinkA := startTransport(t, "node-a")
	tb, sinkB := startTransport(t, "node-b")

	ta.Connect(localAddrPort(t, tb))
	pa := waitPeer(t, sinkA, "a")
	waitPeer(t, sinkB, "b")

	ta.Disconnect(pa.ID())

	select {
	case id := <-sinkA.disconnected:
		if id != pa.ID() {
			t.Errorf("terminated peer = %s, want %s", id, pa.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for local termination")
	}

	// The remote side sees its connection die too.
	select {
	case <-sinkB.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote termination")
	}

	if ta.PeerCount() != 0 {
		t.Errorf("PeerCount() = %d, want 0", ta.PeerCount())
	}
}

func TestTransport_DialFailureIsSilent(t *testing.T) {
	ta, sinkA := startTransport(t, "node-a")

	// Nothing listens here; the dial must fail without surfacing any
	// event.
	ta.Connect(netip.MustParseAddrPort("127.0.0.1:1"))

	select {
	case p := <-sinkA.connected:
		t.Errorf("unexpected peer %s from failed dial", p.ID())
	case <-sinkA.disconnected:
		t.Error("failed dial must not surface a termination")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTransport_StartRequiresSink(t *testing.T) {
	tp := New(Config{ListenHost: "127.0.0.1", ListenPort: 0})
	if err := tp.Start(context.Background()); err == nil {
		tp.Stop()
		t.Fatal("Start() without a sink should fail")
	}
}
