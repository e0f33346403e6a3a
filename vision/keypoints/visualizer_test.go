package keypoints

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/vo/rimage"
	"go.viam.com/vo/vision/correspondence"
)

func TestScoreColor(t *testing.T) {
	r, g, b, _ := ScoreColor(0).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))
	test.That(t, g, test.ShouldEqual, uint32(0))
	test.That(t, b, test.ShouldEqual, uint32(0))

	r, g, b, _ = ScoreColor(1).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0))
	test.That(t, g, test.ShouldEqual, uint32(0xffff))
	test.That(t, b, test.ShouldEqual, uint32(0))

	// clamped
	test.That(t, ScoreColor(3), test.ShouldResemble, ScoreColor(1))
	test.That(t, ScoreColor(-1), test.ShouldResemble, ScoreColor(0))
}

func TestPlanOverlaySingleCorrespondence(t *testing.T) {
	rec, err := correspondence.NewRecord([]r2.Point{{X: 1, Y: 1}}, []r2.Point{{X: 2, Y: 2}}, []float64{0.9})
	test.That(t, err, test.ShouldBeNil)

	o, err := PlanOverlay(rec, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(o.Lines), test.ShouldEqual, 1)
	test.That(t, o.Lines[0].From, test.ShouldResemble, r2.Point{X: 2, Y: 2})
	test.That(t, o.Lines[0].To, test.ShouldResemble, r2.Point{X: 1, Y: 1})
	test.That(t, len(o.Markers), test.ShouldEqual, 1)
	test.That(t, o.Markers[0].Center, test.ShouldResemble, r2.Point{X: 2, Y: 2})
	test.That(t, o.Markers[0].Radius, test.ShouldAlmostEqual, 3.8)

	o, err = PlanOverlay(rec, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, o.Lines, test.ShouldBeEmpty)
	test.That(t, len(o.Markers), test.ShouldEqual, 1)
}

func TestPlanOverlayRejectsMismatch(t *testing.T) {
	rec := correspondence.Record{
		Match0: []r2.Point{{X: 1, Y: 1}, {X: 3, Y: 3}},
		Match1: []r2.Point{{X: 2, Y: 2}},
		Score:  []float64{0.9},
	}
	_, err := PlanOverlay(rec, true)
	test.That(t, errors.Is(err, correspondence.ErrLengthMismatch), test.ShouldBeTrue)

	_, err = PlotMatches(image.NewGray(image.Rect(0, 0, 4, 4)), rec)
	test.That(t, errors.Is(err, correspondence.ErrLengthMismatch), test.ShouldBeTrue)

	_, err = PlanKeypoints([]r2.Point{{X: 1, Y: 1}}, []float64{0.1, 0.2})
	test.That(t, errors.Is(err, correspondence.ErrLengthMismatch), test.ShouldBeTrue)
}

func TestPlotMatchesOnGrayFrame(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range frame.Pix {
		frame.Pix[i] = 100
	}
	rec, err := correspondence.NewRecord([]r2.Point{{X: 5, Y: 5}}, []r2.Point{{X: 12, Y: 12}}, []float64{1})
	test.That(t, err, test.ShouldBeNil)

	out, err := PlotMatches(frame, rec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, frame.Bounds())
	// marker in full green over the gray frame
	test.That(t, out.RGBAAt(12, 12), test.ShouldResemble, color.RGBA{0, 255, 0, 255})
	// the line leaves the marker toward match0
	mid := out.RGBAAt(8, 8)
	test.That(t, mid, test.ShouldNotResemble, color.RGBA{100, 100, 100, 255})
	// untouched background and input
	test.That(t, out.RGBAAt(1, 18), test.ShouldResemble, color.RGBA{100, 100, 100, 255})
	for _, v := range frame.Pix {
		test.That(t, v, test.ShouldEqual, uint8(100))
	}
}

func TestPlotKeypoints(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	out, err := PlotKeypoints(frame, []r2.Point{{X: 5, Y: 5}}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldNotEqual, frame)
	test.That(t, out.RGBAAt(5, 5), test.ShouldResemble, color.RGBA{0, 255, 0, 255})
	test.That(t, frame.RGBAAt(5, 5), test.ShouldResemble, color.RGBA{})

	_, err = PlotKeypoints(image.NewAlpha(image.Rect(0, 0, 4, 4)), nil, nil)
	test.That(t, errors.Is(err, rimage.ErrUnsupportedChannels), test.ShouldBeTrue)
}

func TestDrawOverlayOutOfFrame(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 32, 32))

	rec, err := correspondence.NewRecord([]r2.Point{{X: 4, Y: 4}}, []r2.Point{{X: 5000, Y: -40}}, []float64{0.5})
	test.That(t, err, test.ShouldBeNil)
	out, err := PlotMatches(frame, rec)
	test.That(t, errors.Is(err, ErrOutOfFrame), test.ShouldBeTrue)
	test.That(t, out, test.ShouldBeNil)

	// only the Match0 end of the line is off the frame
	rec, err = correspondence.NewRecord([]r2.Point{{X: 32, Y: 10}}, []r2.Point{{X: 10, Y: 10}}, []float64{0.5})
	test.That(t, err, test.ShouldBeNil)
	_, err = PlotMatches(frame, rec)
	test.That(t, errors.Is(err, ErrOutOfFrame), test.ShouldBeTrue)

	_, err = PlotKeypoints(frame, []r2.Point{{X: -0.5, Y: 3}}, nil)
	test.That(t, errors.Is(err, ErrOutOfFrame), test.ShouldBeTrue)

	_, err = DrawOverlay(frame, &Overlay{Markers: []Marker{{Center: r2.Point{X: math.NaN(), Y: 1}, Radius: 2, Color: lineColor}}})
	test.That(t, errors.Is(err, ErrOutOfFrame), test.ShouldBeTrue)

	// the last pixel is still on the frame
	_, err = PlotKeypoints(frame, []r2.Point{{X: 31.5, Y: 31.5}, {X: 0, Y: 0}}, nil)
	test.That(t, err, test.ShouldBeNil)

	// frames not anchored at the origin use coordinates relative to their corner
	shifted := image.NewGray(image.Rect(100, 100, 110, 110))
	_, err = PlotKeypoints(shifted, []r2.Point{{X: 5, Y: 5}}, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = PlotKeypoints(shifted, []r2.Point{{X: 105, Y: 105}}, nil)
	test.That(t, errors.Is(err, ErrOutOfFrame), test.ShouldBeTrue)
}
