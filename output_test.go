package kms_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeatGlow/kms"
	"github.com/BeatGlow/kms/kmstest"
)

func TestSelectOutput(t *testing.T) {
	bus := kmstest.NewBus()
	dev := bus.NewDevice("card0",
		kmstest.WithCrtcs(40, 41),
		kmstest.WithConnectors(
			kms.Connector{ID: 50},
			kms.Connector{ID: 51, Connected: true, Modes: []kms.Mode{
				kmstest.Mode(1920, 1080, 60),
				kmstest.Mode(1280, 800, 60),
			}},
		),
	)

	tests := []struct {
		Name      string
		Selector  *kms.Selector
		Crtc      kms.CrtcID
		Connector kms.ConnectorID
		Size      image.Point
		Err       error
	}{
		{"default", nil, 40, 51, image.Pt(1920, 1080), nil},
		{"by size", &kms.Selector{Connector: -1, Crtc: 1, Width: 1280, Height: 800}, 41, 51, image.Pt(1280, 800), nil},
		{"forced size", &kms.Selector{Connector: 1, Width: 1024, Height: 600, ForceSize: true}, 40, 51, image.Pt(1024, 600), nil},
		{"missing size", &kms.Selector{Connector: 1, Width: 1024, Height: 600}, 0, 0, image.Point{}, kms.ErrNoMode},
		{"disconnected", &kms.Selector{Connector: 0}, 0, 0, image.Point{}, kms.ErrNoConnector},
		{"connector range", &kms.Selector{Connector: 5}, 0, 0, image.Point{}, kms.ErrNoConnector},
		{"crtc range", &kms.Selector{Connector: -1, Crtc: 2}, 0, 0, image.Point{}, kms.ErrNoCrtc},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			out, err := kms.SelectOutput(dev, test.Selector)
			if test.Err != nil {
				assert.ErrorIs(t, err, test.Err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, dev, out.Device)
			assert.Equal(t, test.Crtc, out.Crtc)
			assert.Equal(t, test.Connector, out.Connector)
			assert.Equal(t, test.Size, out.Mode.Size())
		})
	}
}

func TestSelectOutputPreferred(t *testing.T) {
	dev := kmstest.NewBus().NewDevice("card0")
	out, err := kms.SelectOutput(dev, nil)
	require.NoError(t, err)
	assert.True(t, out.Mode.Preferred())
	assert.Equal(t, "1280x800@60", out.Mode.String())
	assert.Contains(t, out.String(), "card0 crtc 31 connector 32")
}

func TestModeName(t *testing.T) {
	var m kms.Mode
	m.Hdisplay, m.Vdisplay, m.Vrefresh = 800, 480, 75
	assert.Equal(t, "800x480@75", m.String())

	m.SetName("a-very-long-mode-name-that-does-not-fit-at-all")
	assert.Len(t, m.String(), kms.DisplayModeLen-1+len("@75"))
}
