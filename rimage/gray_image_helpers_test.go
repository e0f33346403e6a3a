package rimage

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestChannels(t *testing.T) {
	for _, tc := range []struct {
		name     string
		img      image.Image
		expected int
	}{
		{"gray", image.NewGray(image.Rect(0, 0, 4, 4)), 1},
		{"gray16", image.NewGray16(image.Rect(0, 0, 4, 4)), 1},
		{"rgba", image.NewRGBA(image.Rect(0, 0, 4, 4)), 3},
		{"nrgba", image.NewNRGBA(image.Rect(0, 0, 4, 4)), 3},
		{"ycbcr", image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420), 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Channels(tc.img)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, n, test.ShouldEqual, tc.expected)
		})
	}

	_, err := Channels(image.NewAlpha(image.Rect(0, 0, 4, 4)))
	test.That(t, errors.Is(err, ErrUnsupportedChannels), test.ShouldBeTrue)
	_, err = Channels(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestToRGBDoesNotMutate(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})

	out, err := ToRGB(gray)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, gray.Bounds())
	test.That(t, out.RGBAAt(1, 1), test.ShouldResemble, color.RGBA{200, 200, 200, 255})

	out.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})
	test.That(t, gray.GrayAt(1, 1).Y, test.ShouldEqual, uint8(200))

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	cp, err := ToRGB(rgba)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cp == rgba, test.ShouldBeFalse)
	test.That(t, cp.RGBAAt(0, 0), test.ShouldResemble, color.RGBA{1, 2, 3, 255})

	_, err = ToRGB(image.NewAlpha(image.Rect(0, 0, 1, 1)))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMakeGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.SetRGBA(1, 0, color.RGBA{255, 255, 255, 255})
	gray := MakeGray(rgba)
	test.That(t, gray.GrayAt(1, 0).Y, test.ShouldEqual, uint8(255))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))

	already := image.NewGray(image.Rect(0, 0, 2, 2))
	test.That(t, MakeGray(already) == already, test.ShouldBeTrue)
}

func TestSameImgSize(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 3))
	test.That(t, SameImgSize(gray, image.NewRGBA(image.Rect(10, 10, 14, 13))), test.ShouldBeTrue)
	test.That(t, SameImgSize(gray, image.NewGray(image.Rect(0, 0, 3, 4))), test.ShouldBeFalse)
}
