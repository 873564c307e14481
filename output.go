package kms

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Output is one display pipeline of a device: a CRTC driving a connector at a mode.
type Output struct {
	Device    Device
	Crtc      CrtcID
	Connector ConnectorID
	Mode      Mode

	// Backlight pin, switched on once a buffer is bound to the output (optional).
	Backlight gpio.PinOut
}

func (o Output) String() string {
	return fmt.Sprintf("%s crtc %d connector %d %s", deviceName(o.Device), o.Crtc, o.Connector, &o.Mode)
}

// Selector picks an output from the resources of a device.
type Selector struct {
	// Connector index, use -1 to select the first connected connector.
	Connector int

	// Crtc index.
	Crtc int

	// Width and Height of the mode, use 0 to select the preferred mode.
	Width, Height int

	// ForceSize overrides the active size of the preferred mode if the connector
	// doesn't list a mode of the requested size.
	ForceSize bool
}

// DefaultSelector selects the preferred mode of the first connected connector on the
// first CRTC.
var DefaultSelector = Selector{
	Connector: -1,
}

// SelectOutput resolves sel against the resources of dev, which must implement
// [Enumerator].
func SelectOutput(dev Device, sel *Selector) (Output, error) {
	if sel == nil {
		sel = new(Selector)
		*sel = DefaultSelector
	}

	e, ok := dev.(Enumerator)
	if !ok {
		return Output{}, fmt.Errorf("kms: %s can't enumerate its resources", deviceName(dev))
	}
	res, err := e.Resources()
	if err != nil {
		return Output{}, fmt.Errorf("kms: %s: resources: %w", dev, err)
	}

	if sel.Crtc < 0 || sel.Crtc >= len(res.Crtcs) {
		return Output{}, fmt.Errorf("%w: %s has %d CRTCs, want index %d", ErrNoCrtc, dev, len(res.Crtcs), sel.Crtc)
	}

	var conn *Connector
	switch {
	case sel.Connector < 0:
		for i := range res.Connectors {
			if res.Connectors[i].Connected && len(res.Connectors[i].Modes) > 0 {
				conn = &res.Connectors[i]
				break
			}
		}
	case sel.Connector < len(res.Connectors):
		conn = &res.Connectors[sel.Connector]
	}
	if conn == nil || len(conn.Modes) == 0 {
		return Output{}, fmt.Errorf("%w: %s", ErrNoConnector, dev)
	}

	mode, err := selectMode(conn.Modes, sel)
	if err != nil {
		return Output{}, fmt.Errorf("kms: %s connector %d: %w", dev, conn.ID, err)
	}

	return Output{
		Device:    dev,
		Crtc:      res.Crtcs[sel.Crtc],
		Connector: conn.ID,
		Mode:      mode,
	}, nil
}

func selectMode(modes []Mode, sel *Selector) (Mode, error) {
	preferred := modes[0]
	for _, m := range modes {
		if m.Preferred() {
			preferred = m
			break
		}
	}
	if sel.Width <= 0 || sel.Height <= 0 {
		return preferred, nil
	}

	for _, m := range modes {
		if int(m.Hdisplay) == sel.Width && int(m.Vdisplay) == sel.Height {
			return m, nil
		}
	}
	if !sel.ForceSize {
		return Mode{}, fmt.Errorf("%w: %dx%d", ErrNoMode, sel.Width, sel.Height)
	}

	forced := preferred
	forced.Hdisplay = uint16(sel.Width)
	forced.Vdisplay = uint16(sel.Height)
	forced.SetName(fmt.Sprintf("%dx%d", sel.Width, sel.Height))
	return forced, nil
}
