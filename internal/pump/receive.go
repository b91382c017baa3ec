package pump

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canbridge/boardd/internal/busclient"
	"github.com/canbridge/boardd/internal/cancodec"
	"github.com/canbridge/boardd/internal/metrics"
	"github.com/canbridge/boardd/internal/ratelog"
)

const (
	receiveBulkEndpointCap = 4096
	receiveCycleSleep      = 5 * time.Millisecond
)

// CANPublisher is the narrow Bus slice the receive pump needs.
type CANPublisher interface {
	PublishCAN(batch busclient.FramesBatch) error
}

// Receive is component D: a ~200 Hz bulk-read loop that decodes frames off
// the board and publishes them to the "can" topic.
type Receive struct {
	link    USBLink
	bus     CANPublisher
	metrics *metrics.Registry
	bootRef time.Time

	overflowLog *ratelog.Every
	lastFrameAt atomic.Int64 // unix nanoseconds, 0 if no frame has ever been received
}

// LastFrameAt returns the time of the last successfully published batch, or
// the zero time if none has been published yet.
func (r *Receive) LastFrameAt() time.Time {
	ns := r.lastFrameAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// NewReceive builds a Receive pump. metrics may be nil.
func NewReceive(link USBLink, bus CANPublisher, m *metrics.Registry) *Receive {
	return &Receive{
		link:        link,
		bus:         bus,
		metrics:     m,
		bootRef:     time.Now(),
		overflowLog: ratelog.NewEvery(100),
	}
}

// Run blocks pumping frames until ctx is cancelled.
func (r *Receive) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		buf := make([]byte, receiveBulkEndpointCap)
		n, err := r.link.BulkIn(ctx, buf)
		if err != nil {
			// A retryable failure the link could not classify as timeout or
			// disconnect; treated as a transient protocol error per §7 —
			// absorbed locally, the cycle just produces nothing.
			slog.Warn("receive: bulk_in failed", "error", err)
		} else if n > 0 {
			r.processBatch(buf[:n])
		}
		if r.metrics != nil {
			if last := r.LastFrameAt(); !last.IsZero() {
				r.metrics.LastFrameAgeSecs.Set(time.Since(last).Seconds())
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(receiveCycleSleep):
		}
	}
}

func (r *Receive) processBatch(raw []byte) {
	frames, dropped, err := cancodec.DecodeBatchTolerant(raw)
	if dropped > 0 {
		r.overflowLog.Log("receive: bulk_in overflow, trailing bytes dropped", "dropped", dropped)
	}
	if err != nil {
		slog.Warn("receive: malformed frame dropped", "error", err)
		if r.metrics != nil {
			r.metrics.FramesDropped.Inc()
		}
	}
	if len(frames) == 0 {
		return
	}

	batch := busclient.FramesBatch{
		Timestamp: time.Since(r.bootRef).Microseconds(),
		Can:       toWireFrames(frames),
	}
	if pubErr := r.bus.PublishCAN(batch); pubErr != nil {
		slog.Warn("receive: publish failed", "error", pubErr)
		return
	}
	r.lastFrameAt.Store(time.Now().UnixNano())
	if r.metrics != nil {
		r.metrics.FramesReceived.Add(float64(len(frames)))
		r.metrics.LastFrameAgeSecs.Set(0)
	}
}

func toWireFrames(frames []cancodec.Frame) []busclient.WireFrame {
	out := make([]busclient.WireFrame, len(frames))
	for i, f := range frames {
		out[i] = busclient.WireFrame{
			Address:  f.Address,
			Extended: f.Extended,
			BusTime:  f.BusTime,
			Src:      f.Src,
			Data:     f.Data,
		}
	}
	return out
}

func fromWireFrames(wire []busclient.WireFrame) []cancodec.Frame {
	out := make([]cancodec.Frame, len(wire))
	for i, w := range wire {
		out[i] = cancodec.Frame{
			Address:  w.Address,
			Extended: w.Extended,
			BusTime:  w.BusTime,
			Src:      w.Src,
			Data:     w.Data,
		}
	}
	return out
}
