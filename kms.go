// Package kms shares pixel buffers between two display devices using PRIME and drives
// both devices' legacy modesetting pipelines from the same memory.
//
// A [BufferObject] is allocated on one [Device] with [Create], registered as a
// framebuffer and mapped for CPU writes. [Clone] exports it as a dma-buf descriptor and
// imports it into a second device, producing a second BufferObject over the same memory.
// A [Binder] attaches buffers to a CRTC and forwards dirty notifications, and a
// [Pipeline] sequences all of the above for two outputs.
//
// Set KMS_DEBUG in the environment to log every kernel resource that is created or
// released.
package kms

import (
	"log"
	"os"
)

var debug bool

func init() {
	debug = os.Getenv("KMS_DEBUG") != ""
}

func debugf(format string, args ...any) {
	if debug {
		log.Printf("kms: "+format, args...)
	}
}
