package draw

import (
	"image"
	"image/color"
	"testing"
)

var (
	testBlack = color.RGBA{A: 0xff}
	testWhite = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func newTestImage(w, h int) *image.RGBA {
	i := image.NewRGBA(image.Rect(0, 0, w, h))
	Box(i, i.Bounds(), testBlack)
	return i
}

func TestBox(t *testing.T) {
	i := newTestImage(16, 16)
	Box(i, image.Rect(4, 4, 8, 8), testWhite)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			want := testBlack
			if (image.Point{X: x, Y: y}).In(image.Rect(4, 4, 8, 8)) {
				want = testWhite
			}
			if v := i.RGBAAt(x, y); v != want {
				t.Fatalf("pixel (%d,%d) is %v, expected %v", x, y, v, want)
			}
		}
	}

	// out of bounds boxes are clipped
	Box(i, image.Rect(-10, -10, 100, 1), testWhite)
	if v := i.RGBAAt(15, 0); v != testWhite {
		t.Errorf("expected clipped box to fill row 0, got %v", v)
	}
}

func TestRectangle(t *testing.T) {
	i := newTestImage(10, 10)
	Rectangle(i, image.Rect(2, 3, 8, 9), testWhite)

	tests := []struct {
		Point image.Point
		Want  color.RGBA
	}{
		{image.Pt(2, 3), testWhite},
		{image.Pt(7, 3), testWhite},
		{image.Pt(2, 8), testWhite},
		{image.Pt(7, 8), testWhite},
		{image.Pt(5, 5), testBlack},
		{image.Pt(8, 3), testBlack},
		{image.Pt(2, 9), testBlack},
	}
	for _, test := range tests {
		if v := i.RGBAAt(test.Point.X, test.Point.Y); v != test.Want {
			t.Errorf("pixel %s is %v, expected %v", test.Point, v, test.Want)
		}
	}
}

func TestLine(t *testing.T) {
	i := newTestImage(8, 8)
	Line(i, image.Pt(0, 0), image.Pt(7, 7), testWhite)
	for j := 0; j < 8; j++ {
		if v := i.RGBAAt(j, j); v != testWhite {
			t.Errorf("pixel (%d,%d) on the diagonal is %v", j, j, v)
		}
	}
	if v := i.RGBAAt(1, 0); v != testBlack {
		t.Errorf("pixel (1,0) off the diagonal is %v", v)
	}
}

func TestGrid(t *testing.T) {
	i := newTestImage(9, 9)
	Grid(i, 4, testWhite)
	for _, p := range []image.Point{{0, 3}, {4, 7}, {8, 8}, {5, 0}} {
		if v := i.RGBAAt(p.X, p.Y); v != testWhite {
			t.Errorf("pixel %s is %v, expected grid line", p, v)
		}
	}
	if v := i.RGBAAt(1, 1); v != testBlack {
		t.Errorf("pixel (1,1) is %v, expected background", v)
	}
}

func TestLabel(t *testing.T) {
	i := newTestImage(64, 24)
	if err := Label(i, image.Pt(2, 2), 16, "card0", testWhite); err != nil {
		t.Fatal(err)
	}

	var lit int
	for y := 0; y < 24; y++ {
		for x := 0; x < 64; x++ {
			if i.RGBAAt(x, y) != testBlack {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("expected label to draw some pixels")
	}
}
