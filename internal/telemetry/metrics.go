// Package telemetry exposes prometheus metrics for the dissemination
// protocol. The harness does not scrape these; they exist so a node can be
// watched over an optional local /metrics listener while a workload runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// BroadcastValues counts values accepted from broadcast requests.
	BroadcastValues = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "broadcast_values_total",
			Help:      "Total number of values received via broadcast requests.",
		},
	)

	// GossipSent counts outbound gossip messages, labeled by whether the
	// send was the first attempt for its (neighbor, value) pair or a retry.
	GossipSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "sent_total",
			Help:      "Total number of gossip messages sent.",
		},
		[]string{"kind"},
	)

	// GossipReceived counts inbound gossip messages, duplicates included.
	GossipReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "received_total",
			Help:      "Total number of gossip messages received.",
		},
	)

	// Acks counts inbound gossip acknowledgments, labeled by whether they
	// matched a pending entry.
	Acks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "acks_total",
			Help:      "Total number of gossip acknowledgments received.",
		},
		[]string{"outcome"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gossip",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

// Send kind labels.
const (
	SendFirst = "first"
	SendRetry = "retry"
)

// Ack outcome labels.
const (
	AckMatched = "matched"
	AckUnknown = "unknown"
)

func init() {
	Registry.MustRegister(BroadcastValues, GossipSent, GossipReceived, Acks, uptime)
}

// ObservePending registers a gauge backed by fn, reporting the current
// pending-ack table depth. Call at most once per process.
func ObservePending(fn func() int) {
	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gossip",
			Name:      "pending_acks",
			Help:      "Current number of unacknowledged (neighbor, value) pairs.",
		},
		func() float64 { return float64(fn()) },
	))
}

// Handler exposes /metrics for the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
