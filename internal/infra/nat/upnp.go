// Package nat provides best-effort UPnP port mapping for the p2p
// listener. Failure here is never fatal: a node behind an unmappable
// NAT still dials out and still serves whatever reaches it.
package nat

import (
	"fmt"
	"log"

	"github.com/jcuga/go-upnp"
)

// MapResult describes a successful port mapping.
type MapResult struct {
	ExternalIP string
	Port       uint16
}

// MapPort discovers a UPnP-capable router and forwards the given TCP
// port to this host. Callers treat any error as "skip NAT traversal".
func MapPort(port uint16) (*MapResult, error) {
	router, err := upnp.Discover()
	if err != nil {
		return nil, fmt.Errorf("upnp discovery: %w", err)
	}

	externalIP, err := router.ExternalIP()
	if err != nil {
		return nil, fmt.Errorf("upnp external ip: %w", err)
	}

	if err := router.Forward(port, "Tessera node p2p", "TCP"); err != nil {
		return nil, fmt.Errorf("upnp forward port %d: %w", port, err)
	}

	log.Printf("[nat] forwarded tcp/%d, external ip %s", port, externalIP)
	return &MapResult{ExternalIP: externalIP, Port: port}, nil
}

// UnmapPort removes a previously created mapping. Best-effort.
func UnmapPort(port uint16) {
	router, err := upnp.Discover()
	if err != nil {
		return
	}
	if err := router.Clear(port, "TCP"); err != nil {
		log.Printf("[nat] clear tcp/%d failed: %v", port, err)
	}
}
