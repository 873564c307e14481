package ioctl

import (
	"fmt"
	"reflect"
	"runtime"

	"golang.org/x/sys/unix"
)

// Mode is the IOCTL mode.
type Mode uint8

// Modes
const (
	None Mode = iota
	Write
	Read
)

// ReadWrite is the mode used by nearly every DRM request.
const ReadWrite = Read | Write

// Command to be sent over ioctl.
type Command uintptr

func (c Command) String() string {
	var (
		mode = Mode(c >> 30 & 0x03)
		size = c >> 16 & 0x3fff
		typ  = byte(c >> 8 & 0xff)
		nr   = c & 0xff
		str  string
	)
	if mode&Write > 0 {
		str += " write"
	}
	if mode&Read > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s (%d bytes) '%c' 0x%02x", str, size, typ, uintptr(nr))
}

// Do executes the ioctl call with a pointer to the request struct.
//
// The returned error wraps the [unix.Errno] reported by the kernel.
func Do(fd uintptr, command Command, ptr interface{}) error {
	var p uintptr

	if ptr != nil {
		v := reflect.ValueOf(ptr)
		p = v.Pointer()
	}

	err := Call(fd, uintptr(command), p)
	runtime.KeepAlive(ptr)
	return err
}

// Call does a plain ioctl system call, restarting it when interrupted.
func Call(fd, command, arg uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, command, arg)
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return fmt.Errorf("%s failed: %w", Command(command), errno)
		}
	}
}

// Encode an ioctl command.
func Encode(mode Mode, size uint16, typ byte, nr uint8) Command {
	return Command(mode)<<30 | Command(size&0x3fff)<<16 | Command(typ)<<8 | Command(nr)
}

// Pointer encodes a command for the struct ref points to.
func Pointer(mode Mode, ref interface{}, typ byte, nr uint8) Command {
	size := uint16(reflect.TypeOf(ref).Elem().Size())
	return Encode(mode, size, typ, nr)
}
