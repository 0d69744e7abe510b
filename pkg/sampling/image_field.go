package sampling

import (
	"image"
	"math"
)

// ImageField adapts an image.Image to a Field. A nil image is not ready.
type ImageField struct {
	Img image.Image
}

// Width implements Field.
func (f ImageField) Width() int {
	if f.Img == nil {
		return 0
	}
	return f.Img.Bounds().Dx()
}

// Height implements Field.
func (f ImageField) Height() int {
	if f.Img == nil {
		return 0
	}
	return f.Img.Bounds().Dy()
}

// Sample implements Field using nearest-pixel lookup.
func (f ImageField) Sample(u, v float64) (RGB, error) {
	if f.Img == nil {
		return RGB{}, ErrFieldNotReady
	}
	x, y, err := PixelAt(u, v, f.Width(), f.Height())
	if err != nil {
		return RGB{}, err
	}
	b := f.Img.Bounds()
	r, g, bl, _ := f.Img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return RGB{R: float64(r) / 0xffff, G: float64(g) / 0xffff, B: float64(bl) / 0xffff}, nil
}

// PixelAt maps a normalized coordinate to a pixel index in a w×h grid.
func PixelAt(u, v float64, w, h int) (int, int, error) {
	if w <= 0 || h <= 0 {
		return 0, 0, ErrFieldNotReady
	}
	if math.IsNaN(u) || math.IsNaN(v) || u < 0 || u > 1 || v < 0 || v > 1 {
		return 0, 0, ErrOutOfBounds
	}
	x := int(u * float64(w))
	y := int(v * float64(h))
	if x >= w {
		x = w - 1
	}
	if y >= h {
		y = h - 1
	}
	return x, y, nil
}
