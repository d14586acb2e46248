// Package metrics exposes the fabrics core's Prometheus instrumentation:
// per-peer connection-state gauges, transfer completion counters, and
// bounce-buffer occupancy — grounded on the corpus's own
// prometheus/client_golang usage (promhttp.Handler served from a process
// HTTP mux). Updated from the same goroutine that drives makeProgress/read,
// never from a background collector, preserving the single-threaded-per-
// instance guarantee spec §5 requires.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsActive tracks live per-peer connections, labelled by role
	// (target|initiator) and backend (tcp|shm).
	ConnectionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabrics",
		Name:      "connections_active",
		Help:      "Number of peer connections currently in a connected/activated state.",
	}, []string{"role", "backend"})

	// TransfersCompleted counts completed one-sided writes, labelled by
	// layout (video|audio) and outcome (ok|error).
	TransfersCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabrics",
		Name:      "transfers_completed_total",
		Help:      "Number of one-sided write transfers that reached a terminal completion.",
	}, []string{"layout", "outcome"})

	// BounceBufferEntriesInUse reports how many of a bounce buffer's
	// fixed-size staging entries are currently occupied by an in-flight
	// gather/unpack, labelled by direction (egress|ingress). No code path in
	// this module sets it, so it stays at zero.
	BounceBufferEntriesInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabrics",
		Name:      "bounce_buffer_entries_in_use",
		Help:      "Bounce buffer staging entries currently occupied.",
	}, []string{"direction"})

	// PeerStateTransitions counts Initiator/Target per-peer state machine
	// transitions, labelled by the destination state. No code path in this
	// module increments it, so it stays at zero.
	PeerStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabrics",
		Name:      "peer_state_transitions_total",
		Help:      "Per-peer state machine transitions, labelled by destination state.",
	}, []string{"role", "state"})
)

func init() {
	prometheus.MustRegister(ConnectionsActive, TransfersCompleted, BounceBufferEntriesInUse, PeerStateTransitions)
}
