package kms

import (
	"fmt"
)

// Export converts bo's kernel handle into a portable descriptor. The caller must pass
// the descriptor to [Import] (which closes it) or close it itself.
func Export(dev Device, bo *BufferObject) (Descriptor, error) {
	if !bo.Alive() {
		return nil, exportError(dev, "export", ErrDestroyed)
	}
	if dev == nil || bo.handle.dev != dev {
		return nil, exportError(dev, "export", ErrForeignDevice)
	}
	if err := requirePrime(dev, PrimeExport); err != nil {
		return nil, exportError(dev, "export", err)
	}

	d, err := dev.PrimeHandleToFD(bo.handle.id)
	if err != nil {
		return nil, exportError(dev, "prime handle to fd", err)
	}
	debugf("%s: exported %s as fd %d", dev, bo.handle, d.Fd())
	return d, nil
}

// Import converts a descriptor into a kernel handle owned by dev. The descriptor is
// closed whether the import succeeds or not.
func Import(dev Device, d Descriptor) (Handle, error) {
	if d == nil {
		return Handle{}, importError(dev, "import", ErrNoDescriptor)
	}
	defer func() {
		if err := d.Close(); err != nil {
			debugf("%s: close descriptor: %v", deviceName(dev), err)
		}
	}()

	if dev == nil {
		return Handle{}, importError(dev, "import", ErrNoDevice)
	}
	if err := requirePrime(dev, PrimeImport); err != nil {
		return Handle{}, importError(dev, "import", err)
	}

	id, err := dev.PrimeFDToHandle(d)
	if err != nil {
		return Handle{}, importError(dev, "prime fd to handle", err)
	}
	h := Handle{dev: dev, id: id}
	debugf("%s: imported fd %d as %s", dev, d.Fd(), h)
	return h, nil
}

// Clone shares src, owned by srcDev, with dstDev. The returned buffer has the width,
// height, pitch and size of src, its own framebuffer on dstDev and its own mapping of
// the shared memory. Cloning src into the same device twice yields buffers sharing one
// kernel handle, which stays alive until both are destroyed.
//
// On failure every resource created by this call is released and a *PrimeError is
// returned.
func Clone(srcDev Device, src *BufferObject, dstDev Device) (*BufferObject, error) {
	switch {
	case !src.Alive():
		return nil, primeError(srcDev, "clone", ErrDestroyed)
	case srcDev == nil || src.dev != srcDev:
		return nil, primeError(srcDev, "clone", ErrForeignDevice)
	case dstDev == nil:
		return nil, primeError(dstDev, "clone", ErrNoDevice)
	case dstDev == srcDev:
		return nil, primeError(dstDev, "clone", ErrSameDevice)
	}

	// Both devices have to agree on the memory layout of the shared store, so the
	// source geometry is reused as is and validated against the shared buffer.
	if err := checkLayout(src.width, src.height, src.pitch, uint64(src.size)); err != nil {
		return nil, primeError(srcDev, "clone", err)
	}

	d, err := Export(srcDev, src)
	if err != nil {
		return nil, primeError(srcDev, "export", err)
	}
	if size, serr := d.Size(); serr != nil {
		debugf("%s: size of fd %d unknown: %v", srcDev, d.Fd(), serr)
	} else if size < int64(src.pitch)*int64(src.height) {
		_ = d.Close()
		return nil, primeError(srcDev, "export", fmt.Errorf("%w: shared buffer holds %d bytes, need %d",
			ErrLayout, size, src.pitch*src.height))
	}

	h, err := Import(dstDev, d)
	if err != nil {
		return nil, primeError(dstDev, "import", err)
	}

	bo := &BufferObject{
		dev:      dstDev,
		width:    src.width,
		height:   src.height,
		pitch:    src.pitch,
		size:     src.size,
		handle:   h,
		imported: true,
	}
	acquireHandle(h)

	fb, err := dstDev.AddFB(uint32(bo.width), uint32(bo.height), Depth, BitsPerPixel, uint32(bo.pitch), h.id)
	if err != nil {
		return nil, bo.unwind(primeError(dstDev, "add framebuffer", err))
	}
	bo.fb = Framebuffer{dev: dstDev, id: fb}
	debugf("%s: added %s for %s", dstDev, bo.fb, bo.handle)

	if err = bo.mmap(); err != nil {
		return nil, bo.unwind(primeError(dstDev, "map", err))
	}
	return bo, nil
}

func requirePrime(dev Device, want PrimeCap) error {
	caps, err := dev.PrimeCapabilities()
	if err != nil {
		return err
	}
	if caps&want != want {
		return fmt.Errorf("%w: %s has %s, need %s", ErrPrimeUnsupported, dev, caps, want)
	}
	return nil
}
