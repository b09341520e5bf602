package widgets

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

const (
	ImageAreaWidth  = 640
	ImageAreaHeight = 360
)

// ImageDisplay is a single letterboxed canvas holding the displayed frame.
type ImageDisplay struct {
	image *canvas.Image
}

func NewImageDisplay(initial image.Image) *ImageDisplay {
	img := canvas.NewImageFromImage(initial)
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScalePixels
	img.SetMinSize(fyne.NewSize(ImageAreaWidth, ImageAreaHeight))

	return &ImageDisplay{image: img}
}

func (id *ImageDisplay) GetContainer() fyne.CanvasObject {
	return id.image
}

// SetImage must run on the fyne goroutine. A nil image keeps the current one.
func (id *ImageDisplay) SetImage(img image.Image) {
	if img == nil {
		return
	}
	id.image.Image = img
	id.image.Refresh()
}
