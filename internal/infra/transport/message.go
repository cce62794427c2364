package transport

// Wire messages are newline-delimited JSON. This framing belongs to the
// transport alone; the membership core only ever sees decoded values.

const (
	msgHello     = "hello"     // first message in both directions after connect
	msgAdvertise = "advertise" // known-peers list, solicited or not
	msgGetPeers  = "get_peers" // ask the remote to advertise its known peers
)

type message struct {
	Type       string   `json:"type"`
	NodeID     string   `json:"node_id,omitempty"`
	ListenPort uint16   `json:"listen_port,omitempty"`
	Addrs      []string `json:"addrs,omitempty"`
}
