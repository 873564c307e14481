package drm

import "github.com/BeatGlow/kms/internal/ioctl"

// From <drm/drm.h> and <drm/drm_mode.h>. Only the requests missing from
// github.com/NeowayLabs/drm/mode are issued directly.
const (
	ioctlBase = 'd'

	capDumbBuffer = 0x1
	capPrime      = 0x5

	primeCapImport = 0x1
	primeCapExport = 0x2
)

type sysGetCap struct {
	capability uint64
	value      uint64
}

type sysPrimeHandle struct {
	handle uint32
	flags  uint32
	fd     int32
}

type sysFBDirtyCmd struct {
	fbID     uint32
	flags    uint32
	color    uint32
	numClips uint32
	clipsPtr uint64
}

type sysClipRect struct {
	x1, y1 uint16
	x2, y2 uint16
}

var (
	ioctlGetCap          = ioctl.Pointer(ioctl.ReadWrite, (*sysGetCap)(nil), ioctlBase, 0x0c)
	ioctlPrimeHandleToFD = ioctl.Pointer(ioctl.ReadWrite, (*sysPrimeHandle)(nil), ioctlBase, 0x2d)
	ioctlPrimeFDToHandle = ioctl.Pointer(ioctl.ReadWrite, (*sysPrimeHandle)(nil), ioctlBase, 0x2e)
	ioctlModeDirtyFB     = ioctl.Pointer(ioctl.ReadWrite, (*sysFBDirtyCmd)(nil), ioctlBase, 0xb1)
)
