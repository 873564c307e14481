//go:build !linux

package drm

// Card is unavailable on this platform.
type Card struct{}

// Open always fails with [ErrNotSupported].
func Open(_ string) (*Card, error) {
	return nil, ErrNotSupported
}

// OpenCard always fails with [ErrNotSupported].
func OpenCard(_ int) (*Card, error) {
	return nil, ErrNotSupported
}

func (c *Card) String() string { return "drm(unsupported)" }

// Close does nothing.
func (c *Card) Close() error { return nil }
