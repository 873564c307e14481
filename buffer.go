package kms

import (
	"errors"
	"fmt"
	"image"

	"github.com/BeatGlow/kms/pixel"
)

// BufferObject is one pixel surface owned by exactly one device: a kernel allocation,
// the framebuffer registered for it and its CPU mapping.
//
// The three resources are released together by Destroy, framebuffer first, then the
// mapping, then the kernel handle.
type BufferObject struct {
	dev      Device
	width    int
	height   int
	pitch    int
	size     int
	handle   Handle
	fb       Framebuffer
	mapping  []byte
	image    *pixel.XRGB8888Image
	imported bool
}

// Device returns the device owning the buffer.
func (bo *BufferObject) Device() Device { return bo.dev }

// Width in pixels.
func (bo *BufferObject) Width() int { return bo.width }

// Height in pixels.
func (bo *BufferObject) Height() int { return bo.height }

// Pitch is the number of bytes between vertically adjacent pixels.
func (bo *BufferObject) Pitch() int { return bo.pitch }

// Size of the allocation in bytes, as computed by the device that allocated it.
func (bo *BufferObject) Size() int { return bo.size }

// Bounds of the buffer in its own coordinate space.
func (bo *BufferObject) Bounds() image.Rectangle {
	return image.Rect(0, 0, bo.width, bo.height)
}

// Handle is the kernel handle of the buffer.
func (bo *BufferObject) Handle() Handle { return bo.handle }

// Framebuffer is the framebuffer registered for the buffer.
func (bo *BufferObject) Framebuffer() Framebuffer { return bo.fb }

// Imported reports whether the buffer was created by importing another device's buffer.
func (bo *BufferObject) Imported() bool { return bo.imported }

// Alive reports whether the buffer hasn't been destroyed.
func (bo *BufferObject) Alive() bool { return bo != nil && bo.mapping != nil }

// Image returns an image over the CPU mapping. It's only valid until Destroy.
func (bo *BufferObject) Image() *pixel.XRGB8888Image {
	return bo.image
}

// Fill stores word in every pixel word of the mapping, row padding included.
func (bo *BufferObject) Fill(word uint32) error {
	if !bo.Alive() {
		return ErrDestroyed
	}
	bo.image.FillWord(word)
	return nil
}

func (bo *BufferObject) String() string {
	return fmt.Sprintf("%s %dx%d pitch %d size %d", bo.fb, bo.width, bo.height, bo.pitch, bo.size)
}

// Destroy unregisters the framebuffer, unmaps the buffer and releases the kernel
// handle, in that order. All three releases are attempted even if one fails.
func (bo *BufferObject) Destroy() error {
	if !bo.Alive() {
		return ErrDestroyed
	}

	var errs []error
	if err := bo.releaseFramebuffer(); err != nil {
		errs = append(errs, err)
	}
	if err := bo.releaseMapping(); err != nil {
		errs = append(errs, err)
	}
	if err := bo.releaseHandle(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (bo *BufferObject) releaseFramebuffer() error {
	if !bo.fb.Valid() {
		return nil
	}
	fb := bo.fb
	bo.fb = Framebuffer{}
	debugf("%s: remove %s", fb.dev, fb)
	if err := fb.dev.RmFB(fb.id); err != nil {
		return fmt.Errorf("kms: %s: remove %s: %w", fb.dev, fb, err)
	}
	return nil
}

func (bo *BufferObject) releaseMapping() error {
	if bo.mapping == nil {
		return nil
	}
	mapping := bo.mapping
	bo.mapping, bo.image = nil, nil
	debugf("%s: unmap %d bytes of %s", bo.dev, len(mapping), bo.handle)
	if err := bo.dev.Munmap(mapping); err != nil {
		return fmt.Errorf("kms: %s: unmap %s: %w", bo.dev, bo.handle, err)
	}
	return nil
}

func (bo *BufferObject) releaseHandle() error {
	if !bo.handle.Valid() {
		return nil
	}
	h := bo.handle
	bo.handle = Handle{}
	if !releaseHandleRef(h) {
		debugf("%s: %s is still shared", h.dev, h)
		return nil
	}
	debugf("%s: destroy %s", h.dev, h)
	if err := h.dev.DestroyDumb(h.id); err != nil {
		return fmt.Errorf("kms: %s: destroy %s: %w", h.dev, h, err)
	}
	return nil
}
