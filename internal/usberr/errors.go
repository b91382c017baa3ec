// Package usberr classifies USB transfer errors into the taxonomy the rest
// of this service reacts to: transient, disconnect, protocol, and fatal.
//
// gousb (and the libusb it binds) does not expose a stable error-code type
// across platforms, so classification is done the way the teacher's
// stream-capture module classifies GStreamer errors: by matching against
// the error's message text.
package usberr

import (
	"errors"
	"strings"
)

// Sentinel errors returned by internal/usblink callers use errors.Is
// against these.
var (
	// ErrDisconnected indicates the device was physically detached.
	ErrDisconnected = errors.New("usb: device disconnected")
	// ErrTimeout indicates a transfer timed out with no data transferred.
	ErrTimeout = errors.New("usb: transfer timed out")
	// ErrUnknownSafetyModel indicates a safety model the codec does not
	// recognize; the transfer is skipped rather than sent.
	ErrUnknownSafetyModel = errors.New("usb: unknown safety model")
)

var disconnectKeywords = []string{
	"no device",
	"no such device",
	"device not found",
	"disconnected",
	"device has been disconnected",
	"i/o error",
}

var timeoutKeywords = []string{
	"timeout",
	"timed out",
	"operation timed out",
}

// Classify maps a raw transfer error into the taxonomy above. A nil error
// classifies as nil. Errors that already wrap one of the sentinels above
// classify directly; otherwise the error text is matched against known
// libusb/gousb phrasing.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDisconnected) || errors.Is(err, ErrTimeout) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range disconnectKeywords {
		if strings.Contains(msg, kw) {
			return ErrDisconnected
		}
	}
	for _, kw := range timeoutKeywords {
		if strings.Contains(msg, kw) {
			return ErrTimeout
		}
	}
	return err
}

// IsDisconnect reports whether err classifies as a device-detach error.
func IsDisconnect(err error) bool {
	return errors.Is(Classify(err), ErrDisconnected)
}

// IsTimeout reports whether err classifies as a timeout, a success-shaped
// failure per the USB link contract (the caller proceeds with bytes=0).
func IsTimeout(err error) bool {
	return errors.Is(Classify(err), ErrTimeout)
}
