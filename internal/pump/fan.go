package pump

import (
	"context"
	"log/slog"

	"github.com/canbridge/boardd/internal/busclient"
	"github.com/canbridge/boardd/internal/usblink"
)

// FanSubscriber is the narrow Bus slice the fan pump needs.
type FanSubscriber interface {
	SubscribeFan(handler func(setpoint busclient.FanSetpoint)) error
}

// Fan is the fan half of component F: a reactive pass-through from the
// "thermal" topic to the board's fan-speed control request.
type Fan struct {
	ctx  context.Context
	link USBLink
}

// NewFan builds a Fan pump bound to ctx; ctx is passed to the control
// transfer for each setpoint. Shutdown does not use it: its fan-speed-zero
// call runs with a background context, so it still runs after ctx is
// cancelled.
func NewFan(ctx context.Context, link USBLink) *Fan {
	return &Fan{ctx: ctx, link: link}
}

// Subscribe registers the pump's handler on the "thermal" topic.
func (f *Fan) Subscribe(bus FanSubscriber) error {
	return bus.SubscribeFan(f.handle)
}

func (f *Fan) handle(setpoint busclient.FanSetpoint) {
	if _, err := f.link.Control(f.ctx, false, usblink.ReqSetFanSpeed, setpoint.FanSpeed, 0, nil); err != nil {
		slog.Warn("fan: set fan speed failed", "error", err, "fan_speed", setpoint.FanSpeed)
	}
}

// Shutdown forces the fan off so a stopped service doesn't leave the board
// spinning the fan indefinitely.
func (f *Fan) Shutdown() {
	if _, err := f.link.Control(context.Background(), false, usblink.ReqSetFanSpeed, 0, 0, nil); err != nil {
		slog.Warn("fan: shutdown fan-off failed", "error", err)
	}
}
