package ioctl

import (
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	type createDumb struct {
		height, width, bpp, flags, handle, pitch uint32
		size                                     uint64
	}
	type rmFB struct {
		fb uint32
	}

	tests := []struct {
		Name string
		Got  Command
		Want Command
	}{
		{"create dumb", Pointer(ReadWrite, (*createDumb)(nil), 'd', 0xb2), 0xc02064b2},
		{"rmfb", Pointer(ReadWrite, (*rmFB)(nil), 'd', 0xaf), 0xc00464af},
		{"set crtc", Encode(ReadWrite, 104, 'd', 0xa2), 0xc06864a2},
		{"prime handle to fd", Encode(ReadWrite, 12, 'd', 0x2d), 0xc00c642d},
		{"write only", Encode(Write, 16, 'd', 0x0d), 0x4010640d},
	}
	for _, test := range tests {
		t.Run(test.Name, func(it *testing.T) {
			if test.Got != test.Want {
				it.Errorf("expected command %#08x, got %#08x", uintptr(test.Want), uintptr(test.Got))
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	s := Command(0xc02064b2).String()
	for _, want := range []string{"write", "read", "32 bytes", "'d'", "0xb2"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %q", want, s)
		}
	}
}
