package netlink

import "satsim/internal/telemetry/metrics"

// Metrics are the network task's counters, built the way the teacher wires
// its Prometheus/OTel providers in engine/telemetry/metrics: named
// instruments constructed once and incremented inline.
type Metrics struct {
	FramesSent        metrics.Counter
	FramesReceived     metrics.Counter
	RetransmitHits     metrics.Counter
	RetransmitMisses   metrics.Counter
	HandshakeFailures  metrics.Counter
	SessionsOpened     metrics.Counter
}

// NewMetrics constructs the network task's instruments against provider.
func NewMetrics(provider metrics.Provider) *Metrics {
	return &Metrics{
		FramesSent:        provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_frames_sent_total", Help: "Downlink frames written to the ground socket."}}),
		FramesReceived:    provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_frames_received_total", Help: "Uplink frames read from the ground socket."}}),
		RetransmitHits:    provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_retransmit_hits_total", Help: "RequestRetransmit lookups served from history."}}),
		RetransmitMisses:  provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_retransmit_misses_total", Help: "RequestRetransmit lookups that missed or were too old."}}),
		HandshakeFailures: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_handshake_failures_total", Help: "Failed TCP connect attempts at a visibility rising edge."}}),
		SessionsOpened:    provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Name: "satsim_network_sessions_opened_total", Help: "Visibility-window sessions successfully established."}}),
	}
}
