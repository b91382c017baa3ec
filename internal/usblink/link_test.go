package usblink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/gousb"

	"github.com/canbridge/boardd/internal/config"
)

// fakeDevice is an in-memory stand-in for a claimed USB handle. Errors
// queued via nextErrs are consumed in FIFO order by *any* transfer call,
// including the ones the arming sequence issues — tests that want to
// inject an error on a specific later call must queue it only after the
// link has finished constructing (and therefore finished arming).
type fakeDevice struct {
	mu         sync.Mutex
	closed     bool
	controls   []controlCall
	nextErrs   []error
	bulkInData []byte
}

type controlCall struct {
	out     bool
	request uint8
	value   uint16
}

func (f *fakeDevice) nextErr() error {
	if len(f.nextErrs) == 0 {
		return nil
	}
	err := f.nextErrs[0]
	f.nextErrs = f.nextErrs[1:]
	return err
}

func (f *fakeDevice) ControlOut(request uint8, value, index uint16, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlCall{out: true, request: request, value: value})
	return len(data), f.nextErr()
}

func (f *fakeDevice) ControlIn(request uint8, value, index uint16, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlCall{out: false, request: request, value: value})
	return len(buf), f.nextErr()
}

func (f *fakeDevice) BulkIn(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(buf, f.bulkInData)
	return n, f.nextErr()
}

func (f *fakeDevice) BulkOut(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(data), f.nextErr()
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDevice) queue(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErrs = append(f.nextErrs, err)
}

// newTestLink constructs a Link over a sequence of fake devices (the first
// is used for the initial connect, later ones are handed out on
// reconnect). It returns the link and a counter of safety-gate spawns.
func newTestLink(t *testing.T, cfg *config.Config, devices ...*fakeDevice) (*Link, *int) {
	t.Helper()
	idx := 0
	open := func(ctx *gousb.Context) (device, error) {
		if idx >= len(devices) {
			return nil, errors.New("no more fake devices")
		}
		d := devices[idx]
		idx++
		return d, nil
	}
	spawns := 0
	l, err := newLink(cfg, nil, open, func(*Link) { spawns++ })
	if err != nil {
		t.Fatalf("newLink: %v", err)
	}
	return l, &spawns
}

func TestArmingSequence(t *testing.T) {
	dev := &fakeDevice{}
	cfg := &config.Config{Loopback: true}
	_, spawns := newTestLink(t, cfg, dev)

	if *spawns != 1 {
		t.Fatalf("expected safety gate spawned once, got %d", *spawns)
	}

	var sawLoopback, sawAuxOff, sawSafety bool
	for _, c := range dev.controls {
		switch {
		case c.request == ReqEnableLoop:
			sawLoopback = true
		case c.request == ReqPowerOffAux:
			sawAuxOff = true
		case c.request == ReqSetSafety && c.out && c.value == 0:
			sawSafety = true
		}
	}
	if !sawLoopback || !sawAuxOff || !sawSafety {
		t.Fatalf("missing expected arming calls: %+v", dev.controls)
	}
}

func TestSafetyGateSpawnedOnlyOnce(t *testing.T) {
	dev1 := &fakeDevice{}
	dev2 := &fakeDevice{}
	cfg := &config.Config{}
	l, spawns := newTestLink(t, cfg, dev1, dev2)

	dev1.queue(errors.New("no such device"))
	if _, err := l.BulkIn(context.Background(), make([]byte, 16)); err != nil {
		t.Fatalf("BulkIn: %v", err)
	}
	if *spawns != 1 {
		t.Fatalf("safety gate must spawn at most once per process lifetime, got %d", *spawns)
	}
}

func TestTimeoutReturnsEmptySuccess(t *testing.T) {
	dev := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev)

	dev.queue(errors.New("libusb: transfer timed out"))
	n, err := l.BulkIn(context.Background(), make([]byte, 16))
	if err != nil {
		t.Fatalf("expected nil error on timeout, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected n=0 on timeout, got %d", n)
	}
}

func TestReconnectOnDisconnect(t *testing.T) {
	dev1 := &fakeDevice{}
	dev2 := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev1, dev2)

	dev1.queue(errors.New("device has been disconnected"))
	if _, err := l.BulkIn(context.Background(), make([]byte, 16)); err != nil {
		t.Fatalf("BulkIn after reconnect: %v", err)
	}
	if !dev1.closed {
		t.Fatal("old device handle should be closed after reconnect")
	}
	if l.dev != device(dev2) {
		t.Fatal("link should be bound to the reconnected device")
	}
}

func TestSafetyArmedPreservedAcrossReconnect(t *testing.T) {
	dev1 := &fakeDevice{}
	dev2 := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev1, dev2)
	l.MarkSafetyArmed()

	dev1.queue(errors.New("no such device"))
	if _, err := l.BulkIn(context.Background(), make([]byte, 16)); err != nil {
		t.Fatalf("BulkIn: %v", err)
	}
	if !l.SafetyArmed() {
		t.Fatal("SafetyArmed must survive a reconnect once a prior arming succeeded")
	}
}

func TestControlGenericErrorIsReturnedForCallerToRetry(t *testing.T) {
	dev := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev)

	dev.queue(errors.New("pipe error"))
	if _, err := l.Control(context.Background(), true, ReqSetFanSpeed, 50, 0, nil); err == nil {
		t.Fatal("expected the generic failure to be returned to the caller")
	}

	// A second attempt with no more queued errors succeeds, matching the
	// caller-re-issues contract.
	if _, err := l.Control(context.Background(), true, ReqSetFanSpeed, 50, 0, nil); err != nil {
		t.Fatalf("Control retry: %v", err)
	}
}

func TestConnectedReflectsHandleState(t *testing.T) {
	dev := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev)

	if !l.Connected() {
		t.Fatal("expected Connected() true immediately after a successful open")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.Connected() {
		t.Fatal("expected Connected() false after Close")
	}
}

func TestMutualExclusion(t *testing.T) {
	dev := &fakeDevice{}
	cfg := &config.Config{}
	l, _ := newTestLink(t, cfg, dev)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.BulkIn(context.Background(), make([]byte, 16))
		}()
	}
	wg.Wait()
}
