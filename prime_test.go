package kms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kms"
	"github.com/BeatGlow/kms/kmstest"
)

// newDevices returns two devices on one bus that compute different pitches.
func newDevices(t *testing.T) (*kmstest.Bus, *kmstest.Device, *kmstest.Device) {
	t.Helper()
	bus := kmstest.NewBus()
	return bus,
		bus.NewDevice("card0", kmstest.WithPitchAlign(256)),
		bus.NewDevice("card2", kmstest.WithPitchAlign(64))
}

func TestCloneRoundTrip(t *testing.T) {
	bus, a, b := newDevices(t)

	src, err := kms.Create(a, 100, 50)
	require.NoError(t, err)
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			src.Image().SetWord(x, y, uint32(y<<16|x))
		}
	}

	clone, err := kms.Clone(a, src, b)
	require.NoError(t, err)
	assert.Zero(t, bus.OpenDescriptors(), "descriptor is consumed by the import")

	assert.Equal(t, b, clone.Device())
	assert.True(t, clone.Imported())
	assert.Equal(t, src.Width(), clone.Width())
	assert.Equal(t, src.Height(), clone.Height())
	assert.Equal(t, src.Size(), clone.Size())
	assert.Equal(t, src.Pitch(), clone.Pitch(), "pitch is inherited, not recomputed for the target")
	assert.Equal(t, 512, clone.Pitch())

	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			if v := clone.Image().Word(x, y); v != uint32(y<<16|x) {
				t.Fatalf("clone word (%d,%d) is %#08x", x, y, v)
			}
		}
	}

	// The store is shared both ways.
	require.NoError(t, clone.Fill(0x00ff0000))
	assert.Equal(t, uint32(0x00ff0000), src.Image().Word(99, 49))

	// Identities are per device, even if the raw values match.
	assert.Equal(t, src.Handle().ID(), clone.Handle().ID())
	assert.NotEqual(t, src.Handle(), clone.Handle())
	assert.NotEqual(t, src.Framebuffer(), clone.Framebuffer())

	require.NoError(t, clone.Destroy())
	assertNoResources(t, b)
	assert.Equal(t, uint32(0x00ff0000), src.Image().Word(0, 0), "source survives the clone's teardown")
	require.NoError(t, src.Destroy())
	assertNoResources(t, a)
}

func TestCloneTwice(t *testing.T) {
	_, a, b := newDevices(t)
	src, err := kms.Create(a, 32, 16)
	require.NoError(t, err)
	defer src.Destroy()

	first, err := kms.Clone(a, src, b)
	require.NoError(t, err)
	second, err := kms.Clone(a, src, b)
	require.NoError(t, err)

	// The target holds the buffer once, under a single handle.
	assert.Equal(t, first.Handle(), second.Handle())
	assert.NotEqual(t, first.Framebuffer(), second.Framebuffer())
	assert.Equal(t, 1, b.Handles())
	assert.Equal(t, 2, b.Framebuffers())

	require.NoError(t, first.Destroy())
	assert.Equal(t, 1, b.Handles(), "handle is still owned by the second clone")
	assert.True(t, second.Alive())
	require.NoError(t, second.Fill(0x000000ff))
	assert.Equal(t, uint32(0x000000ff), src.Image().Word(31, 15))

	require.NoError(t, second.Destroy())
	assertNoResources(t, b)
	assert.Equal(t, 1, a.Handles())
}

func TestCloneUnwindKeepsSharedHandle(t *testing.T) {
	_, a, b := newDevices(t)
	src, err := kms.Create(a, 32, 16)
	require.NoError(t, err)
	defer src.Destroy()

	first, err := kms.Clone(a, src, b)
	require.NoError(t, err)

	b.Fail(kmstest.OpAddFB, unix.ENOMEM)
	_, err = kms.Clone(a, src, b)
	require.Error(t, err)
	b.Fail(kmstest.OpAddFB, nil)

	assert.Equal(t, 1, b.Handles(), "failed clone must not destroy the handle of the first")
	require.NoError(t, first.Destroy())
	assertNoResources(t, b)
}

func TestCloneUnwinds(t *testing.T) {
	tests := []struct {
		Name   string
		Source bool
		Op     kmstest.Op
	}{
		{"export", true, kmstest.OpPrimeExport},
		{"import", false, kmstest.OpPrimeImport},
		{"add framebuffer", false, kmstest.OpAddFB},
		{"map dumb", false, kmstest.OpMapDumb},
		{"mmap", false, kmstest.OpMmap},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			bus, a, b := newDevices(t)
			src, err := kms.Create(a, 64, 64)
			require.NoError(t, err)
			defer src.Destroy()

			if test.Source {
				a.Fail(test.Op, unix.EACCES)
			} else {
				b.Fail(test.Op, unix.EACCES)
			}

			clone, err := kms.Clone(a, src, b)
			assert.Nil(t, clone)
			var primeErr *kms.PrimeError
			require.ErrorAs(t, err, &primeErr)
			assert.Equal(t, unix.EACCES, kms.Errno(err))
			assert.Zero(t, bus.OpenDescriptors())
			assertNoResources(t, b)
			assert.True(t, src.Alive())
			assert.Equal(t, 1, a.Handles())
		})
	}
}

func TestCloneRejects(t *testing.T) {
	bus, a, b := newDevices(t)
	src, err := kms.Create(a, 16, 16)
	require.NoError(t, err)

	_, err = kms.Clone(a, src, a)
	assert.ErrorIs(t, err, kms.ErrSameDevice)

	_, err = kms.Clone(b, src, a)
	assert.ErrorIs(t, err, kms.ErrForeignDevice)

	_, err = kms.Clone(a, src, nil)
	assert.ErrorIs(t, err, kms.ErrNoDevice)

	noExport := bus.NewDevice("card1", kmstest.WithPrimeCaps(kms.PrimeImport))
	other, err := kms.Create(noExport, 16, 16)
	require.NoError(t, err)
	_, err = kms.Clone(noExport, other, b)
	var exportErr *kms.ExportError
	assert.ErrorAs(t, err, &exportErr)
	assert.ErrorIs(t, err, kms.ErrPrimeUnsupported)

	noImport := bus.NewDevice("card3", kmstest.WithPrimeCaps(kms.PrimeExport))
	_, err = kms.Clone(a, src, noImport)
	var importErr *kms.ImportError
	assert.ErrorAs(t, err, &importErr)
	assert.Zero(t, bus.OpenDescriptors())

	require.NoError(t, src.Destroy())
	_, err = kms.Clone(a, src, b)
	assert.ErrorIs(t, err, kms.ErrDestroyed)
}

func TestExportImport(t *testing.T) {
	bus, a, b := newDevices(t)
	src, err := kms.Create(a, 16, 16)
	require.NoError(t, err)

	d, err := kms.Export(a, src)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.OpenDescriptors())
	size, err := d.Size()
	require.NoError(t, err)
	assert.EqualValues(t, src.Size(), size)

	_, err = kms.Export(b, src)
	assert.ErrorIs(t, err, kms.ErrForeignDevice)

	h, err := kms.Import(b, d)
	require.NoError(t, err)
	assert.Equal(t, b, h.Device())
	assert.Zero(t, bus.OpenDescriptors())
	assert.Equal(t, 1, b.Handles())

	// A consumed descriptor can't be imported again.
	_, err = kms.Import(b, d)
	assert.Equal(t, unix.EBADF, kms.Errno(err))

	d, err = kms.Export(a, src)
	require.NoError(t, err)
	b.Fail(kmstest.OpPrimeImport, unix.EINVAL)
	_, err = kms.Import(b, d)
	var importErr *kms.ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Zero(t, bus.OpenDescriptors(), "failed import still closes the descriptor")
}
