// Package pixel implements the 32-bit XRGB color model and an image type over
// pitched pixel memory, such as a mapped KMS dumb buffer.
//
// This module provides a color model compatible with Go's native [color.Color] and
// [image.Image] / [draw.Image] interfaces.
package pixel
