//go:build !linux

package usblink

import "errors"

// SetRealtimePriority is unsupported off Linux; boardd targets the vehicle
// compute unit, which always runs Linux, but the build must still succeed
// on a developer's workstation.
func SetRealtimePriority(level int) error {
	return errors.New("usblink: realtime scheduling is only supported on linux")
}
