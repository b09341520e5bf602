package placeholder

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorBarsLayout(t *testing.T) {
	t.Parallel()

	img := ColorBars(700, 480)
	assert.Equal(t, image.Rect(0, 0, 700, 480), img.Bounds())

	// First and last top bars.
	assert.Equal(t, color.RGBA{R: 192, G: 192, B: 192, A: 255}, img.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{R: 0, G: 0, B: 192, A: 255}, img.RGBAAt(690, 10))
	// Castellation under the first bar.
	assert.Equal(t, color.RGBA{R: 0, G: 0, B: 192, A: 255}, img.RGBAAt(10, 330))
	// Bottom band starts with the -I patch.
	assert.Equal(t, color.RGBA{R: 0, G: 33, B: 76, A: 255}, img.RGBAAt(10, 470))
}

func TestColorBarsFullyOpaque(t *testing.T) {
	t.Parallel()

	img := ColorBars(97, 53)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).A != 255 {
				t.Fatalf("pixel (%d,%d) left unpainted", x, y)
			}
		}
	}
}

func TestDefaultIsShared(t *testing.T) {
	t.Parallel()

	assert.Same(t, Default(), Default())
	assert.Equal(t, image.Rect(0, 0, DefaultWidth, DefaultHeight), Default().Bounds())
}

func TestColorBarsFallsBackToDefaultSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, image.Rect(0, 0, DefaultWidth, DefaultHeight), ColorBars(0, -1).Bounds())
}
