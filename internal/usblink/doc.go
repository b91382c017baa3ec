// Package usblink owns the board's USB device handle and serialises every
// control and bulk transfer across it.
//
// # Device
//
// USB vendor/product 0xbbaa/0xddcc, configuration 1, interface 0.
//
// # Control requests
//
//	bmRequestType  bRequest  wValue       direction         meaning
//	0x40           0xDC      safety code  host->dev         set safety model
//	0xC0           0xD2      0            dev->host, 13B    read health
//	0xC0           0xD3      fan speed    host->dev         set fan speed
//	0xC0           0xD9      0            host->dev         power off aux co-processor
//	0xC0           0xE5      1            host->dev         enable CAN loopback
//	0xC0           0xE6      1            host->dev         enable charging
//
// # Bulk endpoints
//
// IN endpoint 0x81 delivers CAN frames; OUT endpoint 0x03 accepts them, both
// in the 16-byte cancodec layout.
//
// # Concurrency
//
// Exactly one mutex guards the handle. Every Control/BulkIn/BulkOut call,
// from any goroutine, is made only while holding it. The mutex is never
// held across bus I/O — only across the USB call itself — so a slow
// publish/subscribe on one goroutine never blocks another goroutine's USB
// access.
package usblink
