// Package metrics provides Prometheus metrics for Tessera: gauges and
// counters for peer membership, admission decisions, discovery, and the
// transport layer. Registered via promauto; exposed at /metrics when
// telemetry is enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Membership ─────────────────────────────────────────────────────────────

// PeersConnected tracks the live peer registry size.
var PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tessera",
	Name:      "peers_connected",
	Help:      "Number of currently connected peers.",
})

// CandidatePoolSize tracks known-but-unconnected candidate addresses.
var CandidatePoolSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tessera",
	Name:      "candidate_pool_size",
	Help:      "Number of candidate peer addresses awaiting a dial.",
})

// ─── Admission decisions ────────────────────────────────────────────────────

// DialsTotal counts connect requests issued to the transport.
var DialsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "dials_total",
	Help:      "Total connect requests issued by the admission controller.",
})

// EvictionsTotal counts stop requests issued when over the high-water mark.
var EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "evictions_total",
	Help:      "Total peer stop requests issued by the admission controller.",
})

// ReadvertiseRequestsTotal counts known-peers requests broadcast to
// connected peers when below the low-water mark.
var ReadvertiseRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "readvertise_requests_total",
	Help:      "Total re-advertise requests sent to connected peers.",
})

// ─── Discovery ──────────────────────────────────────────────────────────────

// DNSLookups counts bootstrap DNS resolutions by result.
var DNSLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "dns_lookups_total",
	Help:      "Total bootstrap DNS lookups by result.",
}, []string{"result"})

// AdvertisesTotal counts peer-list advertisements ingested.
var AdvertisesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "advertises_total",
	Help:      "Total peer-list advertisements received.",
})

// MalformedGossipTotal counts discarded unparseable gossip entries.
var MalformedGossipTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "malformed_gossip_entries_total",
	Help:      "Total gossip address entries discarded as unparseable.",
})

// ─── Transport ──────────────────────────────────────────────────────────────

// TransportMessages counts wire messages by type and direction.
var TransportMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "transport_messages_total",
	Help:      "Total transport messages by type and direction.",
}, []string{"type", "direction"})

// TransportDialFailures counts dials that never became peers.
var TransportDialFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tessera",
	Name:      "transport_dial_failures_total",
	Help:      "Total outbound dials that failed before peer setup completed.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tessera",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
