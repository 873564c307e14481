package kms

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/sys/unix"
)

// Binder attaches buffers to the CRTCs of one device and tracks which buffer each CRTC
// scans out.
//
// A Binder isn't safe for concurrent use.
type Binder struct {
	dev    Device
	active map[CrtcID]*BufferObject
}

// NewBinder returns a binder for dev.
func NewBinder(dev Device) *Binder {
	return &Binder{
		dev:    dev,
		active: make(map[CrtcID]*BufferObject),
	}
}

// Device returns the device the binder drives.
func (b *Binder) Device() Device { return b.dev }

// Bind scans bo out on crtc, driving connector at mode. Any buffer previously bound to
// crtc is superseded but not destroyed.
func (b *Binder) Bind(bo *BufferObject, crtc CrtcID, connector ConnectorID, mode *Mode) error {
	switch {
	case !bo.Alive():
		return bindError(b.dev, "bind", ErrDestroyed)
	case bo.fb.dev != b.dev:
		return bindError(b.dev, "bind", ErrForeignDevice)
	case mode == nil:
		return bindError(b.dev, "bind", ErrNoMode)
	}
	if size := mode.Size(); size.X > bo.width || size.Y > bo.height {
		return bindError(b.dev, "bind", fmt.Errorf("%w: mode %s on %dx%d buffer", ErrModeTooLarge, mode, bo.width, bo.height))
	}

	if err := b.dev.SetCrtc(crtc, bo.fb.id, []ConnectorID{connector}, mode); err != nil {
		return bindError(b.dev, fmt.Sprintf("set crtc %d", crtc), err)
	}
	if prev := b.active[crtc]; prev != nil && prev != bo {
		debugf("%s: crtc %d supersedes %s", b.dev, crtc, prev.fb)
	}
	b.active[crtc] = bo
	debugf("%s: crtc %d scans out %s on connector %d at %s", b.dev, crtc, bo.fb, connector, mode)
	return nil
}

// Active returns the live buffer bound to crtc, if any.
func (b *Binder) Active(crtc CrtcID) *BufferObject {
	if bo := b.active[crtc]; bo.Alive() {
		return bo
	}
	return nil
}

// Bound reports whether bo is scanned out by any CRTC of this binder.
func (b *Binder) Bound(bo *BufferObject) bool {
	if !bo.Alive() {
		return false
	}
	for _, active := range b.active {
		if active == bo {
			return true
		}
	}
	return false
}

// Release forgets bo, typically right before it's destroyed. Destroying a buffer that
// is scanned out disables its CRTC.
func (b *Binder) Release(bo *BufferObject) {
	for crtc, active := range b.active {
		if active == bo {
			delete(b.active, crtc)
		}
	}
}

// MarkDirty notifies the device that region of bo was written through the CPU mapping
// and has to be recomposited to the output. The region is clipped to the buffer.
//
// It fails with a *RefreshError wrapping [ErrNotBound] when bo is not the active
// framebuffer of a CRTC.
func (b *Binder) MarkDirty(bo *BufferObject, region image.Rectangle) error {
	if !b.Bound(bo) {
		return refreshError(b.dev, "mark dirty", ErrNotBound)
	}

	clip := region.Intersect(bo.Bounds())
	if clip.Empty() {
		return nil
	}
	if err := b.dev.DirtyFB(bo.fb.id, []image.Rectangle{clip}); err != nil {
		if errors.Is(err, unix.ENOSYS) {
			// Drivers without a dirty hook scan out of the buffer directly.
			debugf("%s: %s needs no dirty notification", b.dev, bo.fb)
			return nil
		}
		return refreshError(b.dev, "dirty framebuffer", err)
	}
	return nil
}
