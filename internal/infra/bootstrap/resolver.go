// Package bootstrap resolves symbolic bootstrap endpoints to concrete
// peer addresses via DNS. It is only consulted when the node knows no
// peers at all; every other discovery path goes through gossip.
package bootstrap

import (
	"context"
	"log"
	"net"
	"net/netip"

	"github.com/tessera-network/tessera/internal/infra/metrics"
)

// LookupFunc resolves a hostname to IP addresses. Injected so tests
// never touch the real resolver.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// Resolver stamps every resolved address with the network's well-known
// port, independent of whatever the DNS record implies.
type Resolver struct {
	port   uint16
	lookup LookupFunc
}

// NewResolver builds a Resolver. A nil lookup falls back to the
// system resolver.
func NewResolver(port uint16, lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = systemLookup
	}
	return &Resolver{port: port, lookup: lookup}
}

func systemLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// Resolve resolves each endpoint independently and returns the
// deduplicated union. A failing endpoint is logged and skipped; it
// never aborts the batch. An empty result is not an error; the caller
// retries on a later admission cycle.
func (r *Resolver) Resolve(ctx context.Context, endpoints []string) []netip.AddrPort {
	seen := make(map[netip.AddrPort]struct{})
	var out []netip.AddrPort

	for _, endpoint := range endpoints {
		addrs, err := r.lookup(ctx, endpoint)
		if err != nil {
			log.Printf("[bootstrap] lookup %s failed: %v", endpoint, err)
			metrics.DNSLookups.WithLabelValues("error").Inc()
			continue
		}
		metrics.DNSLookups.WithLabelValues("ok").Inc()

		for _, addr := range addrs {
			ap := netip.AddrPortFrom(addr.Unmap(), r.port)
			if _, dup := seen[ap]; dup {
				continue
			}
			seen[ap] = struct{}{}
			out = append(out, ap)
		}
	}

	return out
}
