package kms

import (
	"fmt"
	"math"

	"github.com/BeatGlow/kms/pixel"
)

// Create allocates a width×height 32 bpp dumb buffer on dev, registers it as a depth 24
// framebuffer with the pitch reported by the device and maps it for CPU writes. The
// buffer is cleared to black.
//
// On failure every resource created so far is released and an *AllocationError is
// returned.
func Create(dev Device, width, height int) (*BufferObject, error) {
	if dev == nil {
		return nil, allocationError(dev, "create", ErrNoDevice)
	}
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, allocationError(dev, "create", ErrInvalidSize)
	}

	dumb, err := dev.CreateDumb(uint32(width), uint32(height), BitsPerPixel)
	if err != nil {
		return nil, allocationError(dev, "create dumb", err)
	}
	bo := &BufferObject{
		dev:    dev,
		width:  width,
		height: height,
		pitch:  int(dumb.Pitch),
		size:   int(dumb.Size),
		handle: Handle{dev: dev, id: dumb.Handle},
	}
	acquireHandle(bo.handle)
	debugf("%s: created %s pitch %d size %d", dev, bo.handle, bo.pitch, bo.size)

	if err = checkLayout(bo.width, bo.height, bo.pitch, uint64(dumb.Size)); err != nil {
		return nil, bo.unwind(allocationError(dev, "create dumb", err))
	}

	fb, err := dev.AddFB(uint32(width), uint32(height), Depth, BitsPerPixel, dumb.Pitch, dumb.Handle)
	if err != nil {
		return nil, bo.unwind(allocationError(dev, "add framebuffer", err))
	}
	bo.fb = Framebuffer{dev: dev, id: fb}
	debugf("%s: added %s for %s", dev, bo.fb, bo.handle)

	if err = bo.mmap(); err != nil {
		return nil, bo.unwind(allocationError(dev, "map", err))
	}

	bo.image.Clear()
	return bo, nil
}

// mmap maps the buffer's handle on its device.
func (bo *BufferObject) mmap() error {
	offset, err := bo.dev.MapDumb(bo.handle.id)
	if err != nil {
		return err
	}
	mapping, err := bo.dev.Mmap(offset, bo.size)
	if err != nil {
		return err
	}
	if len(mapping) < bo.pitch*bo.height {
		_ = bo.dev.Munmap(mapping)
		return ErrLayout
	}
	bo.mapping = mapping
	bo.image = pixel.WrapXRGB8888(mapping, bo.width, bo.height, bo.pitch)
	debugf("%s: mapped %d bytes of %s at offset %#x", bo.dev, len(mapping), bo.handle, offset)
	return nil
}

// unwind releases whatever part of a half-built buffer exists, returning err.
func (bo *BufferObject) unwind(err error) error {
	_ = bo.releaseFramebuffer()
	_ = bo.releaseMapping()
	_ = bo.releaseHandle()
	return err
}

// checkLayout verifies that pitch and size describe a 32 bpp surface of width×height.
func checkLayout(width, height, pitch int, size uint64) error {
	if pitch < width*BytesPerPixel {
		return fmt.Errorf("%w: pitch %d is smaller than %d pixels", ErrLayout, pitch, width)
	}
	if size < uint64(pitch)*uint64(height) || size > math.MaxInt {
		return fmt.Errorf("%w: size %d doesn't hold %d rows of %d bytes", ErrLayout, size, height, pitch)
	}
	return nil
}
