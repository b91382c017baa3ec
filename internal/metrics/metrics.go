// Package metrics is the Prometheus metrics surface this system exposes on
// /metrics, replacing the placeholder text the reference health server used
// to print.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every counter and gauge exposed on /metrics. A single
// instance is constructed at startup and threaded into the pumps, which
// update the frame, retry, health and last-frame-age metrics. SafetyArmed,
// LinkConnected, USBReconnects and USBTimeouts are registered but no
// component updates them, so they stay at zero.
type Registry struct {
	FramesReceived   prometheus.Counter
	FramesSent       prometheus.Counter
	FramesDropped    prometheus.Counter
	SendRetries      prometheus.Counter
	HealthPublished  prometheus.Counter
	USBReconnects    prometheus.Counter
	USBTimeouts      prometheus.Counter
	SafetyArmed      prometheus.Gauge
	LinkConnected    prometheus.Gauge
	LastFrameAgeSecs prometheus.Gauge
}

// NewRegistry registers every metric against reg and returns the handle.
// Passing prometheus.NewRegistry() keeps tests free of global registry
// state; passing prometheus.DefaultRegisterer wires into /metrics.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_frames_received_total",
			Help: "CAN frames read from the board's bulk IN endpoint.",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_frames_sent_total",
			Help: "CAN frames written to the board's bulk OUT endpoint.",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_frames_dropped_total",
			Help: "Receive batches cut short by a malformed frame, counted once per batch.",
		}),
		SendRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_send_retries_total",
			Help: "Bulk OUT writes retried after a partial or failed transfer.",
		}),
		HealthPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_health_published_total",
			Help: "Health reports published to the message bus.",
		}),
		USBReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_usb_reconnects_total",
			Help: "Times the USB link was torn down and reopened.",
		}),
		USBTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "boardd_usb_timeouts_total",
			Help: "USB transfers that timed out and were treated as empty.",
		}),
		SafetyArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "boardd_safety_armed",
			Help: "1 if the safety model has been armed on the board, 0 otherwise.",
		}),
		LinkConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "boardd_link_connected",
			Help: "1 if the USB link is currently connected, 0 otherwise.",
		}),
		LastFrameAgeSecs: f.NewGauge(prometheus.GaugeOpts{
			Name: "boardd_last_frame_age_seconds",
			Help: "Seconds since the receive pump last read a frame from the board.",
		}),
	}
}
