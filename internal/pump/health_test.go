package pump

import (
	"context"
	"testing"
	"time"

	"github.com/canbridge/boardd/internal/boardhealth"
	"github.com/canbridge/boardd/internal/busclient"
)

type fakeHealthBus struct {
	envelopes []busclient.HealthEnvelope
}

func (b *fakeHealthBus) PublishHealth(env busclient.HealthEnvelope) error {
	b.envelopes = append(b.envelopes, env)
	return nil
}

func healthWire(t *testing.T, r boardhealth.Report) []byte {
	t.Helper()
	buf := make([]byte, boardhealth.WireSize)
	buf[0] = byte(r.VoltageMV)
	buf[1] = byte(r.VoltageMV >> 8)
	buf[2] = byte(r.VoltageMV >> 16)
	buf[3] = byte(r.VoltageMV >> 24)
	buf[4] = byte(r.CurrentMA)
	buf[5] = byte(r.CurrentMA >> 8)
	buf[6] = byte(r.CurrentMA >> 16)
	buf[7] = byte(r.CurrentMA >> 24)
	if r.IgnitionStarted {
		buf[8] = 1
	}
	if r.ControlsAllowed {
		buf[9] = 1
	}
	if r.GasInterceptorDetected {
		buf[10] = 1
	}
	if r.StartedSignalDetected {
		buf[11] = 1
	}
	buf[12] = r.StartedAlt
	return buf
}

func TestHealthPollPublishesDecodedReport(t *testing.T) {
	wire := healthWire(t, boardhealth.Report{VoltageMV: 12000, CurrentMA: 500, ControlsAllowed: true})
	link := &fakeLink{}
	link.controlRespondWith(wire)

	bus := &fakeHealthBus{}
	h := NewHealth(link, bus, false, nil)
	h.pollOnce(context.Background())

	if len(bus.envelopes) != 1 {
		t.Fatalf("expected one published health envelope, got %d", len(bus.envelopes))
	}
	got := bus.envelopes[0]
	if got.VoltageMV != 12000 || !got.ControlsAllowed {
		t.Fatalf("envelope = %+v, unexpected", got)
	}
}

func TestHealthSpoofsIgnitionWhenConfigured(t *testing.T) {
	wire := healthWire(t, boardhealth.Report{IgnitionStarted: false})
	link := &fakeLink{}
	link.controlRespondWith(wire)

	bus := &fakeHealthBus{}
	h := NewHealth(link, bus, true, nil)
	h.pollOnce(context.Background())

	if !bus.envelopes[0].IgnitionStarted {
		t.Fatal("expected ignition_started spoofed to true")
	}
}

func TestHealthRetriesUntilExactSize(t *testing.T) {
	wire := healthWire(t, boardhealth.Report{VoltageMV: 1})
	link := &fakeLink{shortReadsBeforeFull: 2, fullWire: wire}
	bus := &fakeHealthBus{}
	h := NewHealth(link, bus, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.pollOnce(ctx)

	if len(bus.envelopes) != 1 {
		t.Fatalf("expected exactly one published envelope after retries, got %d", len(bus.envelopes))
	}
}

// controlRespondWith makes every Control call return wire verbatim.
func (f *fakeLink) controlRespondWith(wire []byte) {
	f.controlResponder = func(buf []byte) int {
		copy(buf, wire)
		return len(wire)
	}
}
