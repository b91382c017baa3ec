// Package boardd wires the USB link, the safety gate, the four pumps, and
// the message bus into the running service, mirroring the lifecycle shape
// of the reference service's core.Orion: env parsing happens before this
// package is reached (internal/config), everything from device init
// through graceful teardown happens here.
package boardd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/canbridge/boardd/internal/busclient"
	"github.com/canbridge/boardd/internal/config"
	"github.com/canbridge/boardd/internal/health"
	"github.com/canbridge/boardd/internal/metrics"
	"github.com/canbridge/boardd/internal/paramstore"
	"github.com/canbridge/boardd/internal/pump"
	"github.com/canbridge/boardd/internal/safety"
	"github.com/canbridge/boardd/internal/usblink"
)

// Supervisor owns process-wide lifecycle: USB context, the link, the
// message bus connection, and the four worker pumps bound to them.
type Supervisor struct {
	cfg     *config.Config
	usbCtx  *gousb.Context
	link    *usblink.Link
	bus     *busclient.Client
	metrics *metrics.Registry

	recv *pump.Receive
	send *pump.Send
	hlth *pump.Health
	fan  *pump.Fan
}

// New performs every step of §4.7 up to and including the first connect:
// real-time scheduling, USB context init, first connect and arm, and
// spawning the safety gate. It does not yet start the steady-state pumps —
// call Run for that.
func New(cfg *config.Config, reg *metrics.Registry) (*Supervisor, error) {
	if err := usblink.SetRealtimePriority(4); err != nil {
		slog.Warn("boardd: real-time scheduling unavailable, continuing at default priority", "error", err)
	}

	usbCtx := gousb.NewContext()

	bus, err := busclient.NewClient(cfg.MQTTBroker, "boardd")
	if err != nil {
		usbCtx.Close()
		return nil, fmt.Errorf("boardd: connect message bus: %w", err)
	}

	s := &Supervisor{cfg: cfg, usbCtx: usbCtx, bus: bus, metrics: reg}

	gateSrc := paramstore.GateSource{Store: paramstore.NewFileStore("")}
	link, err := usblink.New(cfg, usbCtx, func(l *usblink.Link) {
		go func() {
			if err := safety.Run(context.Background(), l, gateSrc); err != nil {
				slog.Error("boardd: safety gate exited with error", "error", err)
			}
		}()
	})
	if err != nil {
		bus.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("boardd: initial connect: %w", err)
	}
	s.link = link

	s.recv = pump.NewReceive(link, bus, reg)
	return s, nil
}

// Run spawns the four steady-state pumps and blocks until ctx is cancelled
// or one of them exits abnormally, then tears everything down in reverse
// order and returns.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.send = pump.NewSend(runCtx, s.link, s.cfg.FakeSend, s.metrics)
	s.hlth = pump.NewHealth(s.link, s.bus, s.cfg.SpoofIgnition, s.metrics)
	s.fan = pump.NewFan(runCtx, s.link)

	if err := s.send.Subscribe(s.bus); err != nil {
		return fmt.Errorf("boardd: subscribe sendcan: %w", err)
	}
	if err := s.fan.Subscribe(s.bus); err != nil {
		return fmt.Errorf("boardd: subscribe thermal: %w", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.recv.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		errs <- s.hlth.Run(runCtx)
	}()

	select {
	case <-runCtx.Done():
	case err := <-errs:
		if err != nil {
			slog.Error("boardd: worker exited abnormally, shutting down", "error", err)
		}
		cancel()
	}

	wg.Wait()
	s.fan.Shutdown()
	if err := s.link.Close(); err != nil {
		slog.Warn("boardd: close link", "error", err)
	}
	s.bus.Close()
	s.usbCtx.Close()
	return nil
}

// Status implements health.Source for the HTTP health server.
func (s *Supervisor) Status() health.LinkStatus {
	var lastFrameAt time.Time
	if s.recv != nil {
		lastFrameAt = s.recv.LastFrameAt()
	}
	return buildLinkStatus(s.link.Connected(), s.link.SafetyArmed(), lastFrameAt)
}

// buildLinkStatus is split out from Status so the age calculation is
// testable without a live USB link.
func buildLinkStatus(connected, safetyArmed bool, lastFrameAt time.Time) health.LinkStatus {
	var age float64
	if !lastFrameAt.IsZero() {
		age = time.Since(lastFrameAt).Seconds()
	}
	return health.LinkStatus{
		Connected:       connected,
		SafetyArmed:     safetyArmed,
		LastFrameAt:     lastFrameAt,
		LastFrameAgeSec: age,
	}
}
