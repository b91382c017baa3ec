package pump

import (
	"context"
	"log/slog"
	"time"

	"github.com/canbridge/boardd/internal/boardhealth"
	"github.com/canbridge/boardd/internal/busclient"
	"github.com/canbridge/boardd/internal/metrics"
	"github.com/canbridge/boardd/internal/usblink"
)

const healthPollInterval = time.Second

// HealthPublisher is the narrow Bus slice the health pump needs.
type HealthPublisher interface {
	PublishHealth(env busclient.HealthEnvelope) error
}

// Health is the health half of component F: it polls the board's health
// report at 1 Hz and republishes it on the "health" topic, optionally
// spoofing ignition for bench runs with STARTED set.
type Health struct {
	link          USBLink
	bus           HealthPublisher
	spoofIgnition bool
	metrics       *metrics.Registry
}

// NewHealth builds a Health pump. metrics may be nil.
func NewHealth(link USBLink, bus HealthPublisher, spoofIgnition bool, m *metrics.Registry) *Health {
	return &Health{link: link, bus: bus, spoofIgnition: spoofIgnition, metrics: m}
}

// Run blocks polling health until ctx is cancelled.
func (h *Health) Run(ctx context.Context) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.pollOnce(ctx)
		}
	}
}

// pollOnce issues the health read until it lands exactly WireSize bytes, as
// required by §4.6, retrying short reads (including timeout's empty
// result) in place rather than waiting for the next tick.
func (h *Health) pollOnce(ctx context.Context) {
	var buf []byte
	for {
		if ctx.Err() != nil {
			return
		}
		attempt := make([]byte, boardhealth.WireSize)
		n, err := h.link.Control(ctx, false, usblink.ReqReadHealth, 0, 0, attempt)
		if err != nil {
			slog.Warn("health: control read failed, retrying", "error", err)
			continue
		}
		if n != boardhealth.WireSize {
			continue
		}
		buf = attempt
		break
	}

	report, err := boardhealth.Decode(buf)
	if err != nil {
		slog.Warn("health: malformed report dropped", "error", err)
		return
	}
	if h.spoofIgnition {
		report = report.WithSpoofedIgnition()
	}

	env := busclient.HealthEnvelope{
		Timestamp:              time.Now().UnixMicro(),
		VoltageMV:              report.VoltageMV,
		CurrentMA:              report.CurrentMA,
		IgnitionStarted:        report.IgnitionStarted,
		ControlsAllowed:        report.ControlsAllowed,
		GasInterceptorDetected: report.GasInterceptorDetected,
		StartedSignalDetected:  report.StartedSignalDetected,
		StartedAlt:             report.StartedAlt,
	}
	if err := h.bus.PublishHealth(env); err != nil {
		slog.Warn("health: publish failed", "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.HealthPublished.Inc()
	}
}
