// Package safety implements the one-shot startup safety gate: the board
// always boots in NoOutput, and is reprogrammed to the vehicle's
// actual safety model exactly once, the first time the configuration store
// reports a VehicleConfig.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Model is the finite set of safety policies the board can be armed with.
type Model int

const (
	NoOutput Model = iota
	Honda
	Toyota
	ELM327
	Unknown
)

// reqSetSafety mirrors usblink.ReqSetSafety (bRequest 0xDC); duplicated
// here rather than imported so the gate depends only on the Armer
// interface, not the concrete usblink package.
const reqSetSafety uint8 = 0xDC

// Code returns the board wire value for m, and false for Unknown.
func (m Model) Code() (uint16, bool) {
	switch m {
	case NoOutput:
		return 0, true
	case Honda:
		return 1, true
	case Toyota:
		return 2, true
	case ELM327:
		return 0xE327, true
	default:
		return 0, false
	}
}

func (m Model) String() string {
	switch m {
	case NoOutput:
		return "no_output"
	case Honda:
		return "honda"
	case Toyota:
		return "toyota"
	case ELM327:
		return "elm327"
	default:
		return "unknown"
	}
}

// ConfigSource supplies the vehicle's safety model once it is known. Poll
// returns (model, true, nil) once configuration is available, or (_, false,
// nil) while it is still pending. A non-nil error is fatal to the gate.
type ConfigSource interface {
	Poll(ctx context.Context) (Model, bool, error)
}

// Armer is the slice of *usblink.Link this gate needs: one control
// transfer and a way to record that arming succeeded. Depending on this
// interface rather than the concrete Link keeps the gate testable without
// a real USB context.
type Armer interface {
	Control(ctx context.Context, out bool, request uint8, value, index uint16, buf []byte) (int, error)
	MarkSafetyArmed()
}

const pollInterval = 100 * time.Millisecond

// Run polls src at 10 Hz until a safety model becomes available, then arms
// the board under link's mutex and returns. It is meant to be launched as
// exactly one goroutine per process lifetime — see usblink.Link's
// onFirstArm hook, which guarantees that even across reconnects.
//
// Run returns nil both when arming succeeds and when ctx is cancelled
// before configuration appears (the board simply remains in NoOutput), and
// also when the model is Unknown (no transfer is issued). It returns an
// error when the config source fails or the arming transfer fails.
func Run(ctx context.Context, link Armer, src ConfigSource) error {
	slog.Info("safety: waiting for vehicle configuration")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("safety: exiting without configuration, board remains no_output")
			return nil
		case <-ticker.C:
		}

		model, ok, err := src.Poll(ctx)
		if err != nil {
			return fmt.Errorf("safety: poll configuration: %w", err)
		}
		if !ok {
			continue
		}

		slog.Info("safety: got vehicle configuration", "safety_model", model)

		code, known := model.Code()
		if !known {
			slog.Error("safety: unknown safety model, leaving board in no_output", "safety_model", model)
			return nil
		}

		if _, err := link.Control(ctx, true, reqSetSafety, code, 0, nil); err != nil {
			return fmt.Errorf("safety: arm board: %w", err)
		}
		link.MarkSafetyArmed()
		slog.Info("safety: board armed", "safety_model", model, "code", code)
		return nil
	}
}

// ErrUnavailable signals the configuration store has nothing yet; the gate
// itself does not return this — it is here for ConfigSource implementers.
var ErrUnavailable = errors.New("safety: configuration not yet available")
