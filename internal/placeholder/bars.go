// Package placeholder draws the "no signal" image shown for empty slots,
// out-of-range frames and failed decodes.
package placeholder

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	topBars = []color.RGBA{
		{R: 192, G: 192, B: 192, A: 255},
		{R: 192, G: 192, B: 0, A: 255},
		{R: 0, G: 192, B: 192, A: 255},
		{R: 0, G: 192, B: 0, A: 255},
		{R: 192, G: 0, B: 192, A: 255},
		{R: 192, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 192, A: 255},
	}
	castellations = []color.RGBA{
		{R: 0, G: 0, B: 192, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
		{R: 192, G: 0, B: 192, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
		{R: 0, G: 192, B: 192, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
		{R: 192, G: 192, B: 192, A: 255},
	}
	pluge = []color.RGBA{
		{R: 0, G: 33, B: 76, A: 255},
		{R: 255, G: 255, B: 255, A: 255},
		{R: 50, G: 0, B: 106, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
		{R: 9, G: 9, B: 9, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
		{R: 29, G: 29, B: 29, A: 255},
		{R: 19, G: 19, B: 19, A: 255},
	}
)

// ColorBars renders SMPTE-style colour bars at the given size. Non-positive
// dimensions fall back to the defaults.
func ColorBars(width, height int) *image.RGBA {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	top := height * 2 / 3
	middle := top + height/12

	fillColumns(img, 0, top, topBars)
	fillColumns(img, top, middle, castellations)

	// The bottom band: four wide patches under the first five bars, then
	// the pluge steps under the last two.
	barWidth := width / len(topBars)
	wide := barWidth * 5 / 4
	x := 0
	for _, c := range pluge[:3] {
		fill(img, image.Rect(x, middle, x+wide, height), c)
		x += wide
	}
	fill(img, image.Rect(x, middle, barWidth*5, height), pluge[3])
	x = barWidth * 5
	step := barWidth / 3
	for _, c := range pluge[4:7] {
		fill(img, image.Rect(x, middle, x+step, height), c)
		x += step
	}
	fill(img, image.Rect(x, middle, width, height), pluge[7])

	return img
}

func fillColumns(img *image.RGBA, y0, y1 int, colors []color.RGBA) {
	width := img.Bounds().Dx()
	for i, c := range colors {
		x0 := width * i / len(colors)
		x1 := width * (i + 1) / len(colors)
		fill(img, image.Rect(x0, y0, x1, y1), c)
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

var (
	defaultOnce sync.Once
	defaultImg  *image.RGBA
)

// Default returns a shared colour bars image at the default size. Callers
// must not modify it.
func Default() image.Image {
	defaultOnce.Do(func() {
		defaultImg = ColorBars(DefaultWidth, DefaultHeight)
	})
	return defaultImg
}
