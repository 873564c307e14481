// Package kmstest provides in-memory display devices for testing code built on the kms
// package.
//
// Devices created from the same [Bus] can share buffers with PRIME: exporting a handle
// yields a descriptor in the bus's table, which any device of the bus can import. The
// devices follow the kernel's rules where they matter to callers: framebuffers keep
// their buffer alive, removing a scanned-out framebuffer disables its CRTC and a mode
// can't be larger than the framebuffer it scans out.
//
// Outputs are snapshots: SetCrtc copies the framebuffer to the output and later CPU
// writes only show up on the output after DirtyFB.
package kmstest

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kms"
)

// Op names a device operation for fault injection.
type Op string

// Device operations.
const (
	OpCreateDumb  Op = "create dumb"
	OpMapDumb     Op = "map dumb"
	OpMmap        Op = "mmap"
	OpMunmap      Op = "munmap"
	OpDestroyDumb Op = "destroy dumb"
	OpAddFB       Op = "add fb"
	OpRmFB        Op = "rm fb"
	OpDirtyFB     Op = "dirty fb"
	OpSetCrtc     Op = "set crtc"
	OpPrimeExport Op = "prime export"
	OpPrimeImport Op = "prime import"
)

// Defaults of devices created without options.
const (
	DefaultCrtc       kms.CrtcID      = 31
	DefaultConnector  kms.ConnectorID = 32
	DefaultPitchAlign                 = 64
	pageSize                          = 4096
)

// object is the backing store of a buffer, shared by every handle and framebuffer
// referencing it on any device.
type object struct {
	mem []byte
}

// Bus is the shared dma-buf table of a group of devices.
type Bus struct {
	mu     sync.Mutex
	nextFD int
	fds    map[int]*object
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		nextFD: 100,
		fds:    make(map[int]*object),
	}
}

// OpenDescriptors is the number of exported descriptors that haven't been closed.
func (b *Bus) OpenDescriptors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fds)
}

func (b *Bus) export(obj *object) *descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	fd := b.nextFD
	b.nextFD++
	b.fds[fd] = obj
	return &descriptor{bus: b, fd: fd, size: int64(len(obj.mem))}
}

func (b *Bus) lookup(fd int) (*object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.fds[fd]
	return obj, ok
}

// descriptor is a fake dma-buf file descriptor.
type descriptor struct {
	bus  *Bus
	fd   int
	size int64
}

func (d *descriptor) Fd() uintptr { return uintptr(d.fd) }

func (d *descriptor) Size() (int64, error) { return d.size, nil }

func (d *descriptor) Close() error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if _, ok := d.bus.fds[d.fd]; !ok {
		return fmt.Errorf("kmstest: close fd %d: %w", d.fd, unix.EBADF)
	}
	delete(d.bus.fds, d.fd)
	return nil
}

// Mode returns a mode with the given active size and refresh rate.
func Mode(width, height, refresh int) kms.Mode {
	m := kms.Mode{
		Clock:    uint32(width * height * refresh / 1000),
		Hdisplay: uint16(width),
		Htotal:   uint16(width),
		Vdisplay: uint16(height),
		Vtotal:   uint16(height),
		Vrefresh: uint32(refresh),
		Type:     kms.ModeTypeDriver,
	}
	m.SetName(fmt.Sprintf("%dx%d", width, height))
	return m
}
