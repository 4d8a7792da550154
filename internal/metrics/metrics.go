// Package metrics exposes the toolkit's prometheus instrumentation as
// package-level vectors registered against a dedicated registry rather
// than the promauto helpers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry collects every metric this toolkit registers. A demo/CLI run
// that wants an HTTP exposition endpoint registers this with promhttp
// itself; the core protocol code never reaches for the network.
var Registry = prometheus.NewRegistry()

var (
	// SignalsSent counts Input/Echo/Vote signals broadcast by a participant's
	// reliable engine, labeled by protocol layer and signal type.
	SignalsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_signals_sent_total",
		Help: "Number of reliable-broadcast signals sent, by protocol and signal type",
	}, []string{"protocol", "signal_type"})

	// ThresholdCrossings counts the number of times a participant's reliable
	// engine observed an instance monitor's echo or vote count cross its
	// validity or agreement threshold.
	ThresholdCrossings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_threshold_crossings_total",
		Help: "Number of times a reliable-broadcast instance monitor crossed a threshold",
	}, []string{"protocol", "threshold"})

	// Promotions counts Report-to-Witness and AggregatedReport-to-Witness
	// promotions performed by the witness layer.
	Promotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_promotions_total",
		Help: "Number of Report/AggregatedReport promotions to Witness",
	}, []string{"protocol"})

	// QueueDepth tracks the number of frames currently buffered in an
	// endpoint's inbound channel, sampled on send.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "broadcast_queue_depth",
		Help: "Number of buffered frames in a participant's inbound endpoint",
	}, []string{"participant"})

	// DroppedFrames counts frames dropped because an endpoint's inbound
	// channel was already closed (the peer-gone case). A full channel is
	// never counted here: sends to it wait for capacity instead.
	DroppedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_dropped_frames_total",
		Help: "Number of frames dropped because the destination endpoint was closed",
	}, []string{"participant"})
)

func init() {
	Registry.MustRegister(SignalsSent, ThresholdCrossings, Promotions, QueueDepth, DroppedFrames)
}
