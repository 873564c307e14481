package pixel

import "image/color"

// Models for the standard color types.
var (
	XRGB8888Model color.Model = color.ModelFunc(xrgb8888Model)
)

// Common colors.
var (
	Black = XRGB8888{0x000000}
	White = XRGB8888{0xffffff}
)

// XRGB8888 represents a 24-bit RGB color packed in a 32-bit word.
type XRGB8888 struct {
	// CIgnore, 8, CRed, 8, CGreen, 8, CBlue, 8
	V uint32
}

func (c XRGB8888) RGBA() (r, g, b, a uint32) {
	r = c.V >> 16 & 0xff
	g = c.V >> 8 & 0xff
	b = c.V & 0xff
	// Duplicate the byte in the high byte.
	r |= r << 8
	g |= g << 8
	b |= b << 8
	return r, g, b, 0xffff
}

func xrgb8888Model(c color.Color) color.Color {
	if c, ok := c.(XRGB8888); ok {
		return XRGB8888{c.V & 0xffffff}
	}
	r, g, b, _ := c.RGBA()
	return XRGB8888{(r>>8)<<16 | (g>>8)<<8 | b>>8}
}
