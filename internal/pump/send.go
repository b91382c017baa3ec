package pump

import (
	"context"
	"log/slog"

	"github.com/canbridge/boardd/internal/busclient"
	"github.com/canbridge/boardd/internal/cancodec"
	"github.com/canbridge/boardd/internal/metrics"
)

const sendBulkOutEndpoint = 3

// SendCANSubscriber is the narrow Bus slice the send pump needs.
type SendCANSubscriber interface {
	SubscribeSendCAN(handler func(batch busclient.FramesBatch)) error
}

// Send is component E: it subscribes to outgoing actuator frames, encodes
// them, and writes them to the board's bulk OUT endpoint. With FakeSend set
// the bulk write is suppressed (bench testing) but the subscription still
// drains normally.
type Send struct {
	ctx      context.Context
	link     USBLink
	fakeSend bool
	metrics  *metrics.Registry
}

// NewSend builds a Send pump. ctx bounds the blocking retry loop so
// shutdown does not wedge forever on a persistently failing board; metrics
// may be nil.
func NewSend(ctx context.Context, link USBLink, fakeSend bool, m *metrics.Registry) *Send {
	return &Send{ctx: ctx, link: link, fakeSend: fakeSend, metrics: m}
}

// Subscribe registers the pump's handler on the "sendcan" topic.
func (s *Send) Subscribe(bus SendCANSubscriber) error {
	return bus.SubscribeSendCAN(s.handle)
}

func (s *Send) handle(batch busclient.FramesBatch) {
	if len(batch.Sendcan) == 0 {
		return
	}

	frames := fromWireFrames(batch.Sendcan)
	buf, err := cancodec.EncodeBatch(frames)
	if err != nil {
		slog.Warn("send: malformed outgoing batch dropped", "error", err)
		return
	}

	if s.fakeSend {
		if s.metrics != nil {
			s.metrics.FramesSent.Add(float64(len(frames)))
		}
		return
	}

	s.writeWholeWithRetry(buf)
	if s.metrics != nil {
		s.metrics.FramesSent.Add(float64(len(frames)))
	}
}

// writeWholeWithRetry issues bulk_out until the entire buffer lands in one
// transfer. The wire protocol has no resume semantics, so a short write is
// retried from the start, not resumed.
func (s *Send) writeWholeWithRetry(buf []byte) {
	for {
		if s.ctx.Err() != nil {
			return
		}

		n, err := s.link.BulkOut(s.ctx, buf)
		if err != nil {
			slog.Warn("send: bulk_out failed, retrying", "error", err)
			if s.metrics != nil {
				s.metrics.SendRetries.Inc()
			}
			continue
		}
		if n < len(buf) {
			slog.Warn("send: partial write, retrying whole buffer", "sent", n, "want", len(buf))
			if s.metrics != nil {
				s.metrics.SendRetries.Inc()
			}
			continue
		}
		return
	}
}
