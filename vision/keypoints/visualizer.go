package keypoints

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"go.viam.com/vo/rimage"
	"go.viam.com/vo/vision/correspondence"
)

const (
	minMarkerRadius = 2.
	maxMarkerRadius = 4.
	lineWidth       = 1.
)

var lineColor = color.RGBA{0, 255, 255, 255}

// ErrOutOfFrame is returned when an overlay primitive lies outside of the frame it is drawn on.
var ErrOutOfFrame = errors.New("keypoint outside of the frame")

// Marker is a filled disc drawn at a keypoint.
type Marker struct {
	Center r2.Point
	Radius float64
	Color  color.Color
}

// Line joins a keypoint to its correspondence in the other frame.
type Line struct {
	From  r2.Point
	To    r2.Point
	Color color.Color
}

// Overlay is the list of primitives to draw on top of a frame. Lines are drawn before
// markers.
type Overlay struct {
	Markers []Marker
	Lines   []Line
}

// ScoreColor maps a score in [0, 1] onto a red to green hue ramp. Scores outside of the
// range are clamped.
func ScoreColor(score float64) color.Color {
	return colorful.Hsv(120*clamp01(score), 1, 1).Clamped()
}

func scoreRadius(score float64) float64 {
	return minMarkerRadius + (maxMarkerRadius-minMarkerRadius)*clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// PlanOverlay lays out a marker at every Match1 keypoint of the record and, when withLines
// is set, a line from each Match1 keypoint to its Match0 correspondence.
func PlanOverlay(rec correspondence.Record, withLines bool) (*Overlay, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	o, err := PlanKeypoints(rec.Match1, rec.Score)
	if err != nil {
		return nil, err
	}
	if withLines {
		o.Lines = make([]Line, rec.Len())
		for k := range rec.Match1 {
			o.Lines[k] = Line{From: rec.Match1[k], To: rec.Match0[k], Color: lineColor}
		}
	}
	return o, nil
}

// PlanKeypoints lays out a marker per keypoint. scores may be nil, in which case every
// keypoint is drawn with the highest score.
func PlanKeypoints(points []r2.Point, scores []float64) (*Overlay, error) {
	if scores != nil && len(scores) != len(points) {
		return nil, errors.Wrapf(correspondence.ErrLengthMismatch, "%d keypoints but %d scores", len(points), len(scores))
	}
	o := &Overlay{Markers: make([]Marker, len(points))}
	for i, p := range points {
		s := 1.
		if scores != nil {
			s = scores[i]
		}
		o.Markers[i] = Marker{Center: p, Radius: scoreRadius(s), Color: ScoreColor(s)}
	}
	return o, nil
}

// DrawOverlay draws o on a 3 channel copy of frame. The frame itself is left untouched. Every
// marker centre and line endpoint must fall on a pixel of the frame, in coordinates relative
// to its top left corner.
func DrawOverlay(frame image.Image, o *Overlay) (*image.RGBA, error) {
	bounds := image.Rect(0, 0, frame.Bounds().Dx(), frame.Bounds().Dy())
	for i, l := range o.Lines {
		if !inFrame(l.From, bounds) || !inFrame(l.To, bounds) {
			return nil, errors.Wrapf(ErrOutOfFrame, "line %d from %v to %v, frame is %v", i, l.From, l.To, bounds)
		}
	}
	for i, m := range o.Markers {
		if !inFrame(m.Center, bounds) {
			return nil, errors.Wrapf(ErrOutOfFrame, "marker %d at %v, frame is %v", i, m.Center, bounds)
		}
	}

	out, err := rimage.ToRGB(frame)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForRGBA(out)
	for _, l := range o.Lines {
		rimage.DrawLine(dc, l.From.X, l.From.Y, l.To.X, l.To.Y, l.Color, lineWidth)
	}
	for _, m := range o.Markers {
		rimage.FillCircle(dc, m.Center.X, m.Center.Y, m.Radius, m.Color)
	}
	return out, nil
}

func inFrame(p r2.Point, bounds image.Rectangle) bool {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return false
	}
	return p.X >= float64(bounds.Min.X) && p.X < float64(bounds.Max.X) &&
		p.Y >= float64(bounds.Min.Y) && p.Y < float64(bounds.Max.Y)
}

// PlotMatches draws the Match1 keypoints of rec and their lines to Match0 on frame.
func PlotMatches(frame image.Image, rec correspondence.Record) (*image.RGBA, error) {
	o, err := PlanOverlay(rec, true)
	if err != nil {
		return nil, err
	}
	return DrawOverlay(frame, o)
}

// PlotKeypoints draws keypoints on frame.
func PlotKeypoints(frame image.Image, points []r2.Point, scores []float64) (*image.RGBA, error) {
	o, err := PlanKeypoints(points, scores)
	if err != nil {
		return nil, err
	}
	return DrawOverlay(frame, o)
}
