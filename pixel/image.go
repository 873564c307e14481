package pixel

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/BeatGlow/kms/draw"
)

type Image interface {
	draw.Image

	// Clear the image.
	Clear()

	// Fill the image with a single color.
	Fill(color.Color)
}

// Buffer holds the pixel values and is a container that is used by most image formats in this package.
type Buffer struct {
	// Rect is the image bounding box.
	Rect image.Rectangle

	// Pix are the image pixels.
	Pix []byte

	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int

	// sub is set on buffers returned by SubImage, which don't own their row padding.
	sub bool
}

func (p *Buffer) Bounds() image.Rectangle {
	return p.Rect
}

func (p *Buffer) Clear() {
	p.rows(func(row []byte) {
		clear(row)
	})
}

// rows calls fn with the bytes covered by the buffer. That's all of Pix, row padding
// included, unless the buffer is a sub-image, in which case fn is called once per row
// with only the pixels inside Rect.
func (p *Buffer) rows(fn func([]byte)) {
	if !p.sub {
		fn(p.Pix)
		return
	}
	n := p.Rect.Dx() * 4
	for y := 0; y < p.Rect.Dy(); y++ {
		i := y * p.Stride
		if i+n > len(p.Pix) {
			return
		}
		fn(p.Pix[i : i+n])
	}
}

// XRGB8888Image is a 32-bits per pixel image with 24 significant color bits, stored as
// little-endian words as scanned out by DRM_FORMAT_XRGB8888.
//
// Pix is usually memory owned by someone else, such as a CPU mapping of a dumb buffer,
// and Stride the pitch reported by the device.
type XRGB8888Image struct {
	Buffer
}

// NewXRGB8888Image allocates an image with a tightly packed stride.
func NewXRGB8888Image(w, h int) *XRGB8888Image {
	return &XRGB8888Image{
		Buffer: Buffer{
			Rect:   image.Rect(0, 0, w, h),
			Pix:    make([]byte, w*4*h),
			Stride: w * 4,
		},
	}
}

// WrapXRGB8888 returns an image over existing pixel memory. Pix must hold at least
// stride*h bytes.
func WrapXRGB8888(pix []byte, w, h, stride int) *XRGB8888Image {
	return &XRGB8888Image{
		Buffer: Buffer{
			Rect:   image.Rect(0, 0, w, h),
			Pix:    pix,
			Stride: stride,
		},
	}
}

func (p *XRGB8888Image) ColorModel() color.Model {
	return XRGB8888Model
}

func (p *XRGB8888Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
}

func (p *XRGB8888Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return color.Transparent
	}
	return XRGB8888{p.Word(x, y) & 0xffffff}
}

// Word returns the raw 32-bit word at (x, y), including the unused top byte.
func (p *XRGB8888Image) Word(x, y int) uint32 {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return 0
	}
	return binary.LittleEndian.Uint32(p.Pix[p.PixOffset(x, y):])
}

func (p *XRGB8888Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return
	}
	binary.LittleEndian.PutUint32(p.Pix[p.PixOffset(x, y):], xrgb8888Model(c).(XRGB8888).V)
}

// SetWord stores a raw 32-bit word at (x, y).
func (p *XRGB8888Image) SetWord(x, y int, v uint32) {
	if !(image.Point{X: x, Y: y}).In(p.Rect) {
		return
	}
	binary.LittleEndian.PutUint32(p.Pix[p.PixOffset(x, y):], v)
}

func (p *XRGB8888Image) Fill(c color.Color) {
	p.FillWord(xrgb8888Model(c).(XRGB8888).V)
}

// FillWord stores v in every whole 32-bit word of Pix, row padding included. On a
// sub-image only the words inside Rect are written.
func (p *XRGB8888Image) FillWord(v uint32) {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], v)
	p.rows(func(row []byte) {
		for i, l := 0, len(row)&^3; i < l; i += 4 {
			copy(row[i:], word[:])
		}
	})
}

// SubImage returns an image representing the portion of p visible through r. The
// returned image shares pixels with p.
func (p *XRGB8888Image) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &XRGB8888Image{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &XRGB8888Image{
		Buffer: Buffer{
			Rect:   r,
			Pix:    p.Pix[i:],
			Stride: p.Stride,
			sub:    true,
		},
	}
}

// Interface checks.
var (
	_ Image = (*XRGB8888Image)(nil)
)
