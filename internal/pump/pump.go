// Package pump holds the four steady-state workers bound to the USB link:
// receive, send, health, and fan. Receive and Health are loops run in their
// own goroutines that check ctx at the head of each cycle; Send and Fan are
// handlers invoked by the bus subscription for each message. Each blocks
// only on bus I/O and on the USB mutex.
package pump

import "context"

// USBLink is the subset of *usblink.Link every pump needs. Pumps depend on
// this narrow interface, not the concrete type, so they can be tested
// without hardware.
type USBLink interface {
	Control(ctx context.Context, out bool, request uint8, value, index uint16, buf []byte) (int, error)
	BulkIn(ctx context.Context, buf []byte) (int, error)
	BulkOut(ctx context.Context, data []byte) (int, error)
}
