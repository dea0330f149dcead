package media

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// ToGray converts img to 8-bit intensity, resizing to width x height when
// both are positive.
func ToGray(img image.Image, width, height int) *image.Gray {
	if width > 0 && height > 0 {
		img = Resize(img, width, height)
	}

	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// Resize scales img to exactly width x height with bilinear sampling
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}
