package p2p

import "net/netip"

// Peer is the opaque handle for a connected peer. The manager never
// touches the underlying socket; it only knows the peer's identity and
// can ask it to advertise its known-peers list.
type Peer interface {
	// ID is the peer's unique identity (its remote address).
	ID() string
	// RequestPeers asks the peer to send back its known-peers list.
	RequestPeers() error
}

// Network is the collaborator that owns socket lifecycles. Both calls
// are fire-and-forget: outcomes surface later as PeerConnected /
// PeerDisconnected events, never as return values.
type Network interface {
	Connect(addr netip.AddrPort)
	Disconnect(id string)
}

// Inbound events. All three kinds are folded into one channel so the
// run loop processes them strictly one at a time, in arrival order.
type event interface{}

type peerUpEvent struct {
	peer Peer
}

type peerDownEvent struct {
	id string
}

type advertiseEvent struct {
	from  string
	addrs []string
}
