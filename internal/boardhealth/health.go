// Package boardhealth decodes the board's fixed-size health report.
package boardhealth

import (
	"encoding/binary"
	"fmt"
)

// WireSize is the fixed size in bytes of the board's packed health struct.
const WireSize = 13

// Report mirrors the board's health struct, including StartedAlt which the
// board firmware reports but the original publishing path never forwarded.
type Report struct {
	VoltageMV              uint32
	CurrentMA              uint32
	IgnitionStarted        bool
	ControlsAllowed        bool
	GasInterceptorDetected bool
	StartedSignalDetected  bool
	StartedAlt             uint8
}

// Decode unpacks a 13-byte little-endian packed health report.
func Decode(b []byte) (Report, error) {
	if len(b) != WireSize {
		return Report{}, fmt.Errorf("boardhealth: need %d bytes, got %d", WireSize, len(b))
	}
	return Report{
		VoltageMV:              binary.LittleEndian.Uint32(b[0:4]),
		CurrentMA:              binary.LittleEndian.Uint32(b[4:8]),
		IgnitionStarted:        b[8] != 0,
		ControlsAllowed:        b[9] != 0,
		GasInterceptorDetected: b[10] != 0,
		StartedSignalDetected:  b[11] != 0,
		StartedAlt:             b[12],
	}, nil
}

// WithSpoofedIgnition returns a copy of r with IgnitionStarted forced true,
// used when the supervisor is started with STARTED set.
func (r Report) WithSpoofedIgnition() Report {
	r.IgnitionStarted = true
	return r
}
