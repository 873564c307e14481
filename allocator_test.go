package kms_test

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kms"
	"github.com/BeatGlow/kms/kmstest"
)

func assertNoResources(t *testing.T, dev *kmstest.Device) {
	t.Helper()
	assert.Zero(t, dev.Handles(), "handles on %s", dev)
	assert.Zero(t, dev.Framebuffers(), "framebuffers on %s", dev)
	assert.Zero(t, dev.Mappings(), "mappings on %s", dev)
}

func TestCreateDestroy(t *testing.T) {
	sizes := []image.Point{
		image.Pt(1, 1),
		image.Pt(17, 3),
		image.Pt(640, 480),
		image.Pt(1280, 800),
	}
	for _, size := range sizes {
		t.Run(size.String(), func(t *testing.T) {
			dev := kmstest.NewBus().NewDevice("card0")

			bo, err := kms.Create(dev, size.X, size.Y)
			require.NoError(t, err)
			assert.Equal(t, dev, bo.Device())
			assert.Equal(t, size, bo.Bounds().Size())
			assert.GreaterOrEqual(t, bo.Pitch(), size.X*kms.BytesPerPixel)
			assert.Zero(t, bo.Pitch()%kmstest.DefaultPitchAlign, "pitch is device-computed")
			assert.GreaterOrEqual(t, bo.Size(), bo.Pitch()*size.Y)
			assert.True(t, bo.Handle().Valid())
			assert.True(t, bo.Framebuffer().Valid())
			assert.False(t, bo.Imported())
			assert.Equal(t, uint32(0), bo.Image().Word(size.X-1, size.Y-1), "buffer is cleared")

			assert.Equal(t, 1, dev.Handles())
			assert.Equal(t, 1, dev.Framebuffers())
			assert.Equal(t, 1, dev.Mappings())

			require.NoError(t, bo.Destroy())
			assertNoResources(t, dev)
			assert.False(t, bo.Alive())
			assert.ErrorIs(t, bo.Destroy(), kms.ErrDestroyed)
		})
	}
}

func TestCreateInvalidSize(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")
	for _, size := range []image.Point{{0, 1}, {1, 0}, {-1, 10}, {70000, 1}} {
		_, err := kms.Create(dev, size.X, size.Y)
		var allocErr *kms.AllocationError
		require.ErrorAs(t, err, &allocErr, "size %s", size)
		assert.ErrorIs(t, err, kms.ErrInvalidSize)
	}
	assertNoResources(t, dev)

	_, err := kms.Create(nil, 10, 10)
	assert.ErrorIs(t, err, kms.ErrNoDevice)
}

func TestCreateUnwinds(t *testing.T) {
	tests := []struct {
		Op    kmstest.Op
		Errno unix.Errno
	}{
		{kmstest.OpCreateDumb, unix.ENOMEM},
		{kmstest.OpAddFB, unix.EINVAL},
		{kmstest.OpMapDumb, unix.ENOENT},
		{kmstest.OpMmap, unix.ENOMEM},
	}
	for _, test := range tests {
		t.Run(string(test.Op), func(t *testing.T) {
			dev := kmstest.NewBus().NewDevice("card0")
			dev.Fail(test.Op, test.Errno)

			bo, err := kms.Create(dev, 64, 64)
			assert.Nil(t, bo)
			var allocErr *kms.AllocationError
			require.ErrorAs(t, err, &allocErr)
			assert.Equal(t, "card0", allocErr.Device)
			assert.Equal(t, test.Errno, kms.Errno(err))
			assertNoResources(t, dev)
		})
	}
}

func TestDestroyOrder(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")
	bo, err := kms.Create(dev, 32, 32)
	require.NoError(t, err)

	// Releasing the framebuffer fails, the mapping and the handle are still released.
	dev.Fail(kmstest.OpRmFB, unix.EBUSY)
	err = bo.Destroy()
	assert.Equal(t, unix.EBUSY, kms.Errno(err))
	assert.False(t, bo.Alive())
	assert.Zero(t, dev.Handles())
	assert.Zero(t, dev.Mappings())
	assert.Equal(t, 1, dev.Framebuffers())
}

func TestDestroyLeakDetection(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")

	good, err := kms.Create(dev, 32, 32)
	require.NoError(t, err)
	require.NoError(t, good.Destroy())
	assertNoResources(t, dev)

	leaky, err := kms.Create(dev, 32, 32)
	require.NoError(t, err)
	require.NoError(t, leaky.DestroyWithoutFramebuffer())
	assert.Zero(t, dev.Handles())
	assert.Zero(t, dev.Mappings())
	assert.Equal(t, 1, dev.Framebuffers(), "skipped framebuffer release must be visible as a leak")
}

func TestFill(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")
	bo, err := kms.Create(dev, 10, 4)
	require.NoError(t, err)
	defer bo.Destroy()

	require.NoError(t, bo.Fill(0xff00ff00))
	for y := 0; y < 4; y++ {
		for x := 0; x < 10; x++ {
			if v := bo.Image().Word(x, y); v != 0xff00ff00 {
				t.Fatalf("word (%d,%d) is %#08x", x, y, v)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")
	dev.Fail(kmstest.OpAddFB, unix.EINVAL)
	_, err := kms.Create(dev, 8, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card0")
	assert.Contains(t, err.Error(), "add framebuffer")
	assert.True(t, errors.Is(err, unix.EINVAL), fmt.Sprint(err))
}
