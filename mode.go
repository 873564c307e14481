package kms

import (
	"bytes"
	"fmt"
	"image"
)

// DisplayModeLen is the size of a mode name.
const DisplayModeLen = 32

// Mode type bits.
const (
	ModeTypePreferred = 1 << 3
	ModeTypeDriver    = 1 << 6
)

// Mode is a display timing mode, laid out like struct drm_mode_modeinfo.
type Mode struct {
	Clock                                         uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	Vrefresh uint32

	Flags uint32
	Type  uint32
	Name  [DisplayModeLen]uint8
}

// Size is the active display area.
func (m *Mode) Size() image.Point {
	return image.Pt(int(m.Hdisplay), int(m.Vdisplay))
}

// Preferred reports whether the connector flags this mode as its preferred one.
func (m *Mode) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// SetName replaces the mode name, truncating it to fit.
func (m *Mode) SetName(name string) {
	m.Name = [DisplayModeLen]uint8{}
	copy(m.Name[:DisplayModeLen-1], name)
}

func (m *Mode) String() string {
	name := m.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		return fmt.Sprintf("%dx%d@%d", m.Hdisplay, m.Vdisplay, m.Vrefresh)
	}
	return fmt.Sprintf("%s@%d", name, m.Vrefresh)
}
