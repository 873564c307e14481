package kms

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Errors
var (
	ErrNoDevice         = errors.New("kms: no device")
	ErrInvalidSize      = errors.New("kms: invalid buffer size")
	ErrDestroyed        = errors.New("kms: buffer object is destroyed")
	ErrForeignDevice    = errors.New("kms: object belongs to another device")
	ErrNoDescriptor     = errors.New("kms: no descriptor")
	ErrSameDevice       = errors.New("kms: source and target device are the same")
	ErrPrimeUnsupported = errors.New("kms: device lacks PRIME capability")
	ErrLayout           = errors.New("kms: incompatible buffer layout")
	ErrModeTooLarge     = errors.New("kms: mode exceeds buffer size")
	ErrNotBound         = errors.New("kms: framebuffer is not bound to an active CRTC")
	ErrState            = errors.New("kms: operation not allowed in current state")
	ErrNoConnector      = errors.New("kms: no usable connector")
	ErrNoCrtc           = errors.New("kms: no usable CRTC")
	ErrNoMode           = errors.New("kms: no matching mode")
)

// opError is the common part of the errors returned by the pipeline components.
type opError struct {
	kind   string
	Device string
	Op     string
	Err    error
}

func (e *opError) Error() string {
	return fmt.Sprintf("kms: %s: %s %s: %v", e.Device, e.kind, e.Op, e.Err)
}

func (e *opError) Unwrap() error {
	return e.Err
}

// AllocationError is returned when a dumb buffer allocation, its framebuffer
// registration or its mapping fails.
type AllocationError struct{ opError }

// ExportError is returned when a handle can't be exported as a descriptor.
type ExportError struct{ opError }

// ImportError is returned when a descriptor can't be imported into a device.
type ImportError struct{ opError }

// PrimeError is returned when cloning a buffer into another device fails. It wraps the
// failing step's error, which may itself be an *ExportError or *ImportError.
type PrimeError struct{ opError }

// BindError is returned when a framebuffer can't be attached to a CRTC.
type BindError struct{ opError }

// RefreshError is returned when a dirty notification fails.
type RefreshError struct{ opError }

func deviceName(dev Device) string {
	if dev == nil {
		return "<nil>"
	}
	return dev.String()
}

func allocationError(dev Device, op string, err error) error {
	return &AllocationError{opError{"allocation failed in", deviceName(dev), op, err}}
}

func exportError(dev Device, op string, err error) error {
	return &ExportError{opError{"export failed in", deviceName(dev), op, err}}
}

func importError(dev Device, op string, err error) error {
	return &ImportError{opError{"import failed in", deviceName(dev), op, err}}
}

func primeError(dev Device, op string, err error) error {
	return &PrimeError{opError{"clone failed in", deviceName(dev), op, err}}
}

func bindError(dev Device, op string, err error) error {
	return &BindError{opError{"bind failed in", deviceName(dev), op, err}}
}

func refreshError(dev Device, op string, err error) error {
	return &RefreshError{opError{"refresh failed in", deviceName(dev), op, err}}
}

// Errno returns the device error code wrapped by err, or 0 if there is none.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
