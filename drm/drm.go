// Package drm implements [kms.Device] on top of a Linux DRM device node, typically
// /dev/dri/card[0..x].
//
// The device has to support dumb buffers. PRIME import and export are optional; use
// [Card.PrimeCapabilities] to see which are available.
package drm

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotSupported  = errors.New("drm: not supported")
	ErrNoDumbBuffers = errors.New("drm: device has no dumb buffer support")
)

// CardPath returns the device node of card n.
func CardPath(n int) string {
	return fmt.Sprintf("/dev/dri/card%d", n)
}
