package usblink

import (
	"fmt"

	"github.com/google/gousb"
)

const (
	vendorID  = gousb.ID(0xbbaa)
	productID = gousb.ID(0xddcc)

	usbConfig    = 1
	usbInterface = 0
	usbAltSetup  = 0

	bulkInEndpoint  = 0x81
	bulkOutEndpoint = 0x03
)

// device is the minimal surface usblink needs from a USB handle. The real
// implementation binds gousb (libusb); tests substitute a fake so the
// reconnect and serialisation logic can run without hardware.
type device interface {
	ControlOut(request uint8, value, index uint16, data []byte) (int, error)
	ControlIn(request uint8, value, index uint16, buf []byte) (int, error)
	BulkIn(buf []byte) (int, error)
	BulkOut(data []byte) (int, error)
	Close() error
}

// gousbDevice adapts a claimed gousb.Device + its bulk endpoints to the
// device interface.
type gousbDevice struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	inEp  *gousb.InEndpoint
	outEp *gousb.OutEndpoint
}

// dirOut and dirIn are the two vendor bmRequestType values in the control
// table. The board takes dirIn (0xC0) for the health read and also for
// several host->device requests; only the safety request uses dirOut.
const (
	dirOut = 0x40
	dirIn  = 0xC0
)

func openGousbDevice(ctx *gousb.Context) (device, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("usblink: open device: %w", err)
	}
	if dev == nil {
		return nil, fmt.Errorf("usblink: device %s:%s not present", vendorID, productID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("usblink: set auto detach: %w", err)
	}

	cfg, err := dev.Config(usbConfig)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("usblink: claim configuration %d: %w", usbConfig, err)
	}

	intf, err := cfg.Interface(usbInterface, usbAltSetup)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("usblink: claim interface %d: %w", usbInterface, err)
	}

	inEp, err := intf.InEndpoint(bulkInEndpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("usblink: open in endpoint %#x: %w", bulkInEndpoint, err)
	}

	outEp, err := intf.OutEndpoint(bulkOutEndpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("usblink: open out endpoint %#x: %w", bulkOutEndpoint, err)
	}

	return &gousbDevice{dev: dev, cfg: cfg, intf: intf, inEp: inEp, outEp: outEp}, nil
}

func (g *gousbDevice) ControlOut(request uint8, value, index uint16, data []byte) (int, error) {
	return g.dev.Control(dirOut, request, value, index, data)
}

func (g *gousbDevice) ControlIn(request uint8, value, index uint16, buf []byte) (int, error) {
	return g.dev.Control(dirIn, request, value, index, buf)
}

func (g *gousbDevice) BulkIn(buf []byte) (int, error) {
	return g.inEp.Read(buf)
}

func (g *gousbDevice) BulkOut(data []byte) (int, error) {
	return g.outEp.Write(data)
}

func (g *gousbDevice) Close() error {
	g.intf.Close()
	g.cfg.Close()
	return g.dev.Close()
}
