package kms

import (
	"fmt"
	"image"
)

// Pixel format of every buffer handled by this package.
const (
	Depth         = 24
	BitsPerPixel  = 32
	BytesPerPixel = BitsPerPixel / 8
)

// CrtcID identifies a CRTC within one device.
type CrtcID uint32

// ConnectorID identifies an output connector within one device.
type ConnectorID uint32

// DumbBuffer is the result of a dumb buffer allocation, as computed by the device.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// PrimeCap describes the PRIME capabilities of a device.
type PrimeCap uint8

// PRIME capability bits, from <drm/drm.h>.
const (
	PrimeImport PrimeCap = 1 << iota
	PrimeExport
)

func (c PrimeCap) String() string {
	switch c & (PrimeImport | PrimeExport) {
	case PrimeImport:
		return "import"
	case PrimeExport:
		return "export"
	case PrimeImport | PrimeExport:
		return "import+export"
	default:
		return "none"
	}
}

// Descriptor is a portable buffer descriptor (a dma-buf file descriptor). It is
// consumed by exactly one import and must be closed exactly once.
type Descriptor interface {
	// Fd is the descriptor number in this process.
	Fd() uintptr

	// Size of the shared buffer in bytes. Kernels that can't seek on a dma-buf
	// return an error.
	Size() (int64, error)

	// Close the descriptor.
	Close() error
}

// Device is an open, privileged connection to one display device.
//
// Handles, framebuffer IDs and map offsets are raw values in the device's own
// namespace; the rest of this package wraps them in device-tagged types.
type Device interface {
	String() string

	// CreateDumb allocates a dumb buffer; pitch and size are device-computed.
	CreateDumb(width, height, bpp uint32) (DumbBuffer, error)

	// MapDumb returns the offset to pass to Mmap for handle.
	MapDumb(handle uint32) (offset uint64, err error)

	// Mmap maps size bytes of a dumb buffer into the process.
	Mmap(offset uint64, size int) ([]byte, error)

	// Munmap releases a mapping returned by Mmap.
	Munmap(mapping []byte) error

	// DestroyDumb releases the handle.
	DestroyDumb(handle uint32) error

	// AddFB registers handle as a framebuffer.
	AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (fb uint32, err error)

	// RmFB unregisters a framebuffer.
	RmFB(fb uint32) error

	// DirtyFB requests clips of fb to be recomposited to the outputs scanning it out.
	DirtyFB(fb uint32, clips []image.Rectangle) error

	// SetCrtc scans fb out on crtc, driving connectors with mode.
	SetCrtc(crtc CrtcID, fb uint32, connectors []ConnectorID, mode *Mode) error

	// PrimeCapabilities reports whether handles can be exported and imported.
	PrimeCapabilities() (PrimeCap, error)

	// PrimeHandleToFD exports handle as a portable descriptor.
	PrimeHandleToFD(handle uint32) (Descriptor, error)

	// PrimeFDToHandle imports a descriptor into this device. It does not close d.
	PrimeFDToHandle(d Descriptor) (handle uint32, err error)
}

// Enumerator is implemented by devices that can list their CRTCs and connectors.
type Enumerator interface {
	Resources() (*Resources, error)
}

// Resources of a device's display pipeline.
type Resources struct {
	Crtcs      []CrtcID
	Connectors []Connector
}

// Connector is an output connector with the modes it supports.
type Connector struct {
	ID        ConnectorID
	Connected bool
	Modes     []Mode
}

// Handle is a kernel buffer handle tagged with the device owning it. Handles of
// different devices never compare equal, even if their raw values do.
type Handle struct {
	dev Device
	id  uint32
}

// Device returns the device owning the handle.
func (h Handle) Device() Device { return h.dev }

// ID is the raw handle in the owning device's namespace.
func (h Handle) ID() uint32 { return h.id }

// Valid reports whether h refers to a live handle.
func (h Handle) Valid() bool { return h.dev != nil && h.id != 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "handle(none)"
	}
	return fmt.Sprintf("%s:handle(%d)", h.dev, h.id)
}

// Framebuffer is a framebuffer ID tagged with the device owning it.
type Framebuffer struct {
	dev Device
	id  uint32
}

// Device returns the device owning the framebuffer.
func (fb Framebuffer) Device() Device { return fb.dev }

// ID is the raw framebuffer ID in the owning device's namespace.
func (fb Framebuffer) ID() uint32 { return fb.id }

// Valid reports whether fb is registered.
func (fb Framebuffer) Valid() bool { return fb.dev != nil && fb.id != 0 }

func (fb Framebuffer) String() string {
	if !fb.Valid() {
		return "fb(unbound)"
	}
	return fmt.Sprintf("%s:fb(%d)", fb.dev, fb.id)
}
