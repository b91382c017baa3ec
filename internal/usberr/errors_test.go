package usberr

import (
	"errors"
	"testing"
)

func TestClassifyDisconnect(t *testing.T) {
	err := errors.New("LIBUSB_ERROR_NO_DEVICE: no such device (it may have been disconnected)")
	if !IsDisconnect(Classify(err)) {
		t.Fatalf("expected disconnect classification for %q", err)
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := errors.New("libusb: transfer timed out")
	if !IsTimeout(Classify(err)) {
		t.Fatalf("expected timeout classification for %q", err)
	}
}

func TestClassifyUnknownPassesThrough(t *testing.T) {
	err := errors.New("some other libusb failure")
	if got := Classify(err); got != err {
		t.Fatalf("Classify(%v) = %v, want unchanged", err, got)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) must be nil")
	}
}
