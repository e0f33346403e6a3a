// Package rimage holds the raster helpers used to read frames and annotate them.
package rimage

import (
	"image"
	"image/draw"

	"github.com/pkg/errors"
)

// ErrUnsupportedChannels is returned for images whose color model cannot be drawn in color.
var ErrUnsupportedChannels = errors.New("unsupported image channel layout")

// Channels reports how many color channels an image carries: 1 for grayscale images,
// 3 for color images. Alpha-only images are rejected.
func Channels(img image.Image) (int, error) {
	if img == nil {
		return 0, errors.New("image is nil")
	}
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1, nil
	case *image.Alpha, *image.Alpha16, *image.Uniform:
		return 0, errors.Wrapf(ErrUnsupportedChannels, "%T", img)
	default:
		return 3, nil
	}
}

// ToRGB returns a new 3 channel copy of img. Grayscale frames are expanded so colored
// annotations can be drawn on top of them; color frames are copied as-is. The input is never
// modified.
func ToRGB(img image.Image) (*image.RGBA, error) {
	if _, err := Channels(img); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out, nil
}

// MakeGray takes an image and well... makes it gray (image.Gray).
func MakeGray(pic image.Image) *image.Gray {
	if gray, ok := pic.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	bounds := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), pic, bounds.Min, draw.Src)
	return result
}

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Dx() == g2.Bounds().Dx() && g1.Bounds().Dy() == g2.Bounds().Dy()
}
