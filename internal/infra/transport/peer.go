package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/tessera-network/tessera/internal/infra/metrics"
)

// peerConn is one live peer connection. It satisfies the membership
// core's Peer interface: the core can read its identity and ask it to
// re-advertise, nothing else.
type peerConn struct {
	id         string // remote address, the peer's identity
	nodeID     string // remote node ID from the hello exchange
	listenAddr string // remote's advertised listen address, "" if unknown

	t      *Transport
	conn   net.Conn
	reader *bufio.Reader

	sendCh   chan message
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newPeerConn(t *Transport, id string, conn net.Conn, reader *bufio.Reader, hello message) *peerConn {
	p := &peerConn{
		id:     id,
		nodeID: hello.NodeID,
		t:      t,
		conn:   conn,
		reader: reader,
		sendCh: make(chan message, 32),
		stopCh: make(chan struct{}),
	}
	if hello.ListenPort > 0 {
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			p.listenAddr = net.JoinHostPort(host, fmt.Sprintf("%d", hello.ListenPort))
		}
	}
	return p
}

// ID returns the peer's identity (its remote address).
func (p *peerConn) ID() string { return p.id }

// RequestPeers asks the remote to send its known-peers list.
func (p *peerConn) RequestPeers() error {
	return p.send(message{Type: msgGetPeers})
}

func (p *peerConn) send(msg message) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("peer %s is closed", p.id)
	default:
	}
	select {
	case p.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send buffer to %s is full", p.id)
	}
}

// close tears down the connection; safe to call more than once.
func (p *peerConn) close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.conn.Close()
	})
}

// start launches the read and write loops after the hello exchange.
func (p *peerConn) start() {
	go p.readLoop()
	go p.writeLoop()
}

func (p *peerConn) readLoop() {
	defer p.t.dropPeer(p)

	for {
		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Printf("[transport] bad message from %s: %v", p.id, err)
			continue
		}
		metrics.TransportMessages.WithLabelValues(msg.Type, "in").Inc()

		switch msg.Type {
		case msgAdvertise:
			p.t.sink.AdvertiseReceived(p.id, msg.Addrs)
		case msgGetPeers:
			if err := p.send(message{Type: msgAdvertise, Addrs: p.t.KnownAddrs()}); err != nil {
				log.Printf("[transport] advertise reply to %s failed: %v", p.id, err)
			}
		case msgHello:
			// Handshake already completed; a repeat hello carries nothing new.
		default:
			// Unknown message kinds are ignored.
		}
	}
}

func (p *peerConn) writeLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.sendCh:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[transport] encode for %s failed: %v", p.id, err)
				continue
			}
			if _, err := p.conn.Write(append(data, '\n')); err != nil {
				log.Printf("[transport] write to %s failed: %v", p.id, err)
				p.close()
				return
			}
			metrics.TransportMessages.WithLabelValues(msg.Type, "out").Inc()
		}
	}
}
