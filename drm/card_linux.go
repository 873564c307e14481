package drm

import (
	"fmt"
	"image"
	"io"
	"os"
	"runtime"
	"unsafe"

	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kms"
	"github.com/BeatGlow/kms/internal/ioctl"
)

// Card is an open DRM device node.
type Card struct {
	f    *os.File
	fd   uintptr
	name string
}

// Open a DRM device node by name, typically /dev/dri/card[0..x].
func Open(name string) (*Card, error) {
	f, err := os.OpenFile(name, os.O_RDWR|unix.O_CLOEXEC, os.ModeDevice)
	if err != nil {
		return nil, err
	}

	c := &Card{
		f:    f,
		fd:   f.Fd(),
		name: name,
	}
	dumb, err := c.capability(capDumbBuffer)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if dumb == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoDumbBuffers, name)
	}
	return c, nil
}

// OpenCard opens /dev/dri/card<n>.
func OpenCard(n int) (*Card, error) {
	return Open(CardPath(n))
}

func (c *Card) String() string {
	return c.name
}

// Close the device node. Resources still allocated through it are released by the
// kernel.
func (c *Card) Close() error {
	return c.f.Close()
}

func (c *Card) ioctl(cmd ioctl.Command, arg interface{}) error {
	return ioctl.Do(c.fd, cmd, arg)
}

func (c *Card) capability(capability uint64) (uint64, error) {
	req := sysGetCap{capability: capability}
	if err := c.ioctl(ioctlGetCap, &req); err != nil {
		return 0, err
	}
	return req.value, nil
}

func (c *Card) CreateDumb(width, height, bpp uint32) (kms.DumbBuffer, error) {
	fb, err := mode.CreateFB(c.f, uint16(width), uint16(height), bpp)
	if err != nil {
		return kms.DumbBuffer{}, err
	}
	return kms.DumbBuffer{
		Handle: fb.Handle,
		Pitch:  fb.Pitch,
		Size:   fb.Size,
	}, nil
}

func (c *Card) MapDumb(handle uint32) (uint64, error) {
	return mode.MapDumb(c.f, handle)
}

func (c *Card) Mmap(offset uint64, size int) ([]byte, error) {
	mapping, err := unix.Mmap(int(c.fd), int64(offset), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &os.SyscallError{Syscall: "mmap", Err: err}
	}
	return mapping, nil
}

func (c *Card) Munmap(mapping []byte) error {
	if err := unix.Munmap(mapping); err != nil {
		return &os.SyscallError{Syscall: "munmap", Err: err}
	}
	return nil
}

func (c *Card) DestroyDumb(handle uint32) error {
	return mode.DestroyDumb(c.f, handle)
}

func (c *Card) AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	return mode.AddFB(c.f, uint16(width), uint16(height), depth, bpp, pitch, handle)
}

func (c *Card) RmFB(fb uint32) error {
	return mode.RmFB(c.f, fb)
}

func (c *Card) DirtyFB(fb uint32, clips []image.Rectangle) error {
	rects := make([]sysClipRect, len(clips))
	for i, r := range clips {
		rects[i] = sysClipRect{
			x1: uint16(r.Min.X),
			y1: uint16(r.Min.Y),
			x2: uint16(r.Max.X),
			y2: uint16(r.Max.Y),
		}
	}
	req := sysFBDirtyCmd{
		fbID:     fb,
		numClips: uint32(len(rects)),
	}
	if len(rects) > 0 {
		req.clipsPtr = uint64(uintptr(unsafe.Pointer(&rects[0])))
	}
	err := c.ioctl(ioctlModeDirtyFB, &req)
	runtime.KeepAlive(rects)
	return err
}

func (c *Card) SetCrtc(crtc kms.CrtcID, fb uint32, connectors []kms.ConnectorID, m *kms.Mode) error {
	ids := make([]uint32, len(connectors))
	for i, id := range connectors {
		ids[i] = uint32(id)
	}
	var first *uint32
	if len(ids) > 0 {
		first = &ids[0]
	}
	var info *mode.Info
	if m != nil {
		v := modeToInfo(m)
		info = &v
	}
	err := mode.SetCrtc(c.f, uint32(crtc), fb, 0, 0, first, len(ids), info)
	runtime.KeepAlive(ids)
	return err
}

func (c *Card) PrimeCapabilities() (kms.PrimeCap, error) {
	v, err := c.capability(capPrime)
	if err != nil {
		return 0, err
	}
	var caps kms.PrimeCap
	if v&primeCapImport != 0 {
		caps |= kms.PrimeImport
	}
	if v&primeCapExport != 0 {
		caps |= kms.PrimeExport
	}
	return caps, nil
}

func (c *Card) PrimeHandleToFD(handle uint32) (kms.Descriptor, error) {
	req := sysPrimeHandle{
		handle: handle,
		flags:  unix.O_CLOEXEC | unix.O_RDWR,
	}
	if err := c.ioctl(ioctlPrimeHandleToFD, &req); err != nil {
		return nil, err
	}
	return &dmaBuf{os.NewFile(uintptr(req.fd), fmt.Sprintf("dmabuf:%s:%d", c.name, handle))}, nil
}

func (c *Card) PrimeFDToHandle(d kms.Descriptor) (uint32, error) {
	req := sysPrimeHandle{fd: int32(d.Fd())}
	err := c.ioctl(ioctlPrimeFDToHandle, &req)
	runtime.KeepAlive(d)
	if err != nil {
		return 0, err
	}
	return req.handle, nil
}

// dmaBuf is an exported buffer descriptor.
type dmaBuf struct {
	*os.File
}

// Size seeks to the end of the dma-buf, which reports its size.
func (b *dmaBuf) Size() (int64, error) {
	size, err := b.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err = b.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

// Interface checks.
var (
	_ kms.Device     = (*Card)(nil)
	_ kms.Enumerator = (*Card)(nil)
)
