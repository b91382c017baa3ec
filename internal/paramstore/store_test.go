package paramstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/canbridge/boardd/internal/safety"
)

func TestFileStoreGetNotSet(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if _, err := s.Get("CarParams"); err != ErrNotSet {
		t.Fatalf("Get on missing key = %v, want ErrNotSet", err)
	}
}

func TestFileStoreGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "CarParams"), []byte(`{"safety_model":"HONDA"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(dir)
	data, err := s.Get("CarParams")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	model, err := DecodeSafetyModel(data)
	if err != nil {
		t.Fatalf("DecodeSafetyModel: %v", err)
	}
	if model != safety.Honda {
		t.Fatalf("model = %v, want honda", model)
	}
}

func TestDecodeSafetyModelUnknown(t *testing.T) {
	model, err := DecodeSafetyModel([]byte(`{"safety_model":"FUTURE_EV_PLATFORM"}`))
	if err != nil {
		t.Fatalf("DecodeSafetyModel: %v", err)
	}
	if model != safety.Unknown {
		t.Fatalf("model = %v, want unknown", model)
	}
}

func TestGateSourcePoll(t *testing.T) {
	dir := t.TempDir()
	src := GateSource{Store: NewFileStore(dir)}

	_, ok, err := src.Poll(context.Background())
	if err != nil || ok {
		t.Fatalf("Poll before write: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "CarParams"), []byte(`{"safety_model":"TOYOTA"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	model, ok, err := src.Poll(context.Background())
	if err != nil || !ok {
		t.Fatalf("Poll after write: ok=%v err=%v", ok, err)
	}
	if model != safety.Toyota {
		t.Fatalf("model = %v, want toyota", model)
	}
}
