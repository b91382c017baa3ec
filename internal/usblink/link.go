package usblink

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/google/uuid"

	"github.com/canbridge/boardd/internal/config"
	"github.com/canbridge/boardd/internal/ratelog"
	"github.com/canbridge/boardd/internal/usberr"
)

// Control request numbers from the board's vendor interface (§6).
const (
	ReqSetSafety     uint8 = 0xDC
	ReqReadHealth    uint8 = 0xD2
	ReqSetFanSpeed   uint8 = 0xD3
	ReqPowerOffAux   uint8 = 0xD9
	ReqEnableLoop    uint8 = 0xE5
	ReqEnableCharge  uint8 = 0xE6
)

const reconnectBackoff = 100 * time.Millisecond

// openFunc opens a fresh device handle. Production code binds this to
// openGousbDevice; tests substitute a fake.
type openFunc func(ctx *gousb.Context) (device, error)

// Link exclusively owns the board's USB device handle and the mutex that
// guards it. No other component may hold a reference to the handle itself
// — only to a *Link.
type Link struct {
	cfg    *config.Config
	usbCtx *gousb.Context
	open   openFunc
	errLog *ratelog.Every

	mu                sync.Mutex
	dev               device
	sessionID         uuid.UUID
	configClaimed     bool
	safetyArmed       bool
	safetyGateSpawned bool

	// onFirstArm is invoked at most once per process lifetime, the instant
	// the device has been armed for the first time, so the caller can spawn
	// the safety gate (§4.3: never respawned, even across reconnects).
	onFirstArm func(l *Link)
}

// New creates a Link bound to usbCtx and performs the initial connect and
// arming sequence (§4.1). onFirstArm is called synchronously under the
// link's mutex the first time arming completes in this process.
func New(cfg *config.Config, usbCtx *gousb.Context, onFirstArm func(l *Link)) (*Link, error) {
	return newLink(cfg, usbCtx, openGousbDevice, onFirstArm)
}

// newLink is the shared constructor behind New; tests substitute a fake
// openFunc to exercise arming and reconnect without hardware.
func newLink(cfg *config.Config, usbCtx *gousb.Context, open openFunc, onFirstArm func(l *Link)) (*Link, error) {
	l := &Link{
		cfg:        cfg,
		usbCtx:     usbCtx,
		open:       open,
		errLog:     ratelog.NewEvery(100),
		onFirstArm: onFirstArm,
	}
	if err := l.connectAndArm(); err != nil {
		return nil, err
	}
	return l, nil
}

// connectAndArm must be called before any other Link method. It takes the
// mutex itself; the reconnect path, which already holds it, calls
// connectAndArmLocked instead.
func (l *Link) connectAndArm() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectAndArmLocked()
}

func (l *Link) connectAndArmLocked() error {
	dev, err := l.open(l.usbCtx)
	if err != nil {
		return fmt.Errorf("usblink: connect: %w", err)
	}

	if l.cfg.Loopback {
		if _, err := dev.ControlIn(ReqEnableLoop, 1, 0, nil); err != nil {
			slog.Warn("usblink: enable loopback failed", "error", err)
		}
	}
	if _, err := dev.ControlIn(ReqPowerOffAux, 0, 0, nil); err != nil {
		slog.Warn("usblink: power off aux co-processor failed", "error", err)
	}
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		if _, err := dev.ControlIn(ReqEnableCharge, 1, 0, nil); err != nil {
			slog.Warn("usblink: enable charging failed", "error", err)
		}
	}
	if _, err := dev.ControlOut(ReqSetSafety, 0, 0, nil); err != nil {
		dev.Close()
		return fmt.Errorf("usblink: force no-output safety model: %w", err)
	}

	l.dev = dev
	l.sessionID = uuid.New()
	l.configClaimed = true
	// safetyArmed is intentionally left as-is: a prior successful arming
	// survives reconnect, otherwise the gate remains responsible.

	slog.Info("usblink: connected", "session", l.sessionID, "loopback", l.cfg.Loopback)

	if !l.safetyGateSpawned {
		l.safetyGateSpawned = true
		if l.onFirstArm != nil {
			l.onFirstArm(l)
		}
	}
	return nil
}

// SessionID returns the identifier minted on the most recent successful
// open, useful for correlating log lines across a reconnect.
func (l *Link) SessionID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// MarkSafetyArmed records that the safety gate successfully armed the
// board, so a later reconnect knows arming is not its responsibility.
func (l *Link) MarkSafetyArmed() {
	l.mu.Lock()
	l.safetyArmed = true
	l.mu.Unlock()
}

// SafetyArmed reports whether MarkSafetyArmed has been called in this
// process, i.e. whether the safety gate's arming transfer succeeded.
func (l *Link) SafetyArmed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.safetyArmed
}

// Connected reports whether the link currently holds an open device handle.
// It can go false and true again at any moment as reconnects happen.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dev != nil
}

// Control issues a vendor control transfer. out selects the bmRequestType:
// true sends dirOut (0x40), false sends dirIn (0xC0), which the board also
// uses for several host->device requests (see the package doc's table); a
// non-empty buf on a dirIn request reads a data stage from the device.
//
// Per the §4.1 contract: a disconnect-class error reconnects the device and
// returns (0, nil) — the caller observes an empty cycle, not a failure.
// Timeout likewise returns (0, nil). Any other error is returned to the
// caller as a retryable failure for the caller's own retry loop to re-issue.
func (l *Link) Control(ctx context.Context, out bool, request uint8, value, index uint16, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	var err error
	if out {
		n, err = l.dev.ControlOut(request, value, index, buf)
	} else {
		n, err = l.dev.ControlIn(request, value, index, buf)
	}
	return l.handleTransferResultLocked(n, err)
}

// BulkIn reads up to len(buf) bytes from the CAN receive endpoint. See
// Control for the error-taxonomy contract.
func (l *Link) BulkIn(ctx context.Context, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.dev.BulkIn(buf)
	return l.handleTransferResultLocked(n, err)
}

// BulkOut writes data to the CAN transmit endpoint. See Control for the
// error-taxonomy contract.
func (l *Link) BulkOut(ctx context.Context, data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.dev.BulkOut(data)
	return l.handleTransferResultLocked(n, err)
}

// handleTransferResultLocked applies the §4.1 error taxonomy to one
// transfer's outcome. Must be called with l.mu held.
func (l *Link) handleTransferResultLocked(n int, err error) (int, error) {
	if err == nil {
		return n, nil
	}

	class := usberr.Classify(err)
	switch {
	case usberr.IsTimeout(class):
		return 0, nil
	case usberr.IsDisconnect(class):
		l.errLog.Log("usblink: device disconnected, reconnecting")
		l.reconnectLocked()
		return 0, nil
	default:
		l.errLog.Log("usblink: transfer error", "error", err)
		return 0, class
	}
}

// reconnectLocked closes the current handle and retries open+arm with a
// fixed backoff, indefinitely, until success. Must be called with l.mu
// held; other callers block on the same mutex for the duration, which is
// the point — they must not observe a half-reconnected handle.
func (l *Link) reconnectLocked() {
	if l.dev != nil {
		l.dev.Close()
		l.dev = nil
	}
	for {
		if err := l.connectAndArmLocked(); err == nil {
			return
		}
		time.Sleep(reconnectBackoff)
	}
}

// Close releases the device handle. Not safe to call concurrently with any
// in-flight transfer.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dev == nil {
		return nil
	}
	err := l.dev.Close()
	l.dev = nil
	return err
}
