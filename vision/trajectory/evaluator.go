// Package trajectory accumulates estimated and reference camera positions, scores the
// localization error and renders a top-down view of both trails.
package trajectory

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/vo/rimage"
)

const (
	// CanvasSize is the side length in pixels of the square trajectory canvas.
	CanvasSize = 600
	// DefaultOffsetX is the pixel column where ground plane x == 0 is drawn.
	DefaultOffsetX = 290
	// DefaultOffsetY is the pixel row where ground plane z == 0 is drawn.
	DefaultOffsetY = 90
)

var (
	// ErrOutOfCanvas is returned when a position projects outside of the canvas.
	ErrOutOfCanvas = errors.New("position projects outside of the trajectory canvas")

	estimatedColor = color.RGBA{0, 255, 0, 255}
	referenceColor = color.RGBA{255, 0, 0, 255}
	bannerColor    = color.RGBA{0, 0, 0, 255}
	textColor      = color.RGBA{255, 255, 255, 255}

	bannerRect = image.Rect(10, 20, CanvasSize, 80)
	textOrigin = image.Point{20, 40}
)

const (
	estimatedRadius = 1.0
	referenceRadius = 2.0
	textSize        = 13.0
)

// Point pairs an estimated camera position with its reference position.
type Point struct {
	Estimated r3.Vector
	Reference r3.Vector
}

// Evaluator scores estimated positions against reference positions and draws both on a
// persistent canvas. It is not safe for concurrent use.
type Evaluator struct {
	cfg    Config
	logger golog.Logger

	points []Point
	errors []float64
	mean   float64

	canvas *image.RGBA
	dc     *gg.Context
}

// NewEvaluator returns an Evaluator with an empty black canvas.
func NewEvaluator(cfg Config, logger golog.Logger) *Evaluator {
	cfg = cfg.withDefaults()
	canvas := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	dc := gg.NewContextForRGBA(canvas)
	rimage.FillRectangle(dc, canvas.Bounds(), color.Black)
	return &Evaluator{
		cfg:    cfg,
		logger: logger,
		canvas: canvas,
		dc:     dc,
	}
}

// GroundPlane projects a camera position onto the horizontal plane (axis 0 and axis 2).
func GroundPlane(v r3.Vector) r2.Point {
	return r2.Point{X: v.X, Y: v.Z}
}

// Error is the euclidean distance between two positions on the ground plane.
func Error(a, b r3.Vector) float64 {
	return GroundPlane(a).Sub(GroundPlane(b)).Norm()
}

// MapToCanvas converts a ground plane position to canvas pixel coordinates, truncating toward zero.
func (e *Evaluator) MapToCanvas(p r2.Point) image.Point {
	return image.Point{
		X: int(p.X*e.cfg.Scale) + e.cfg.OffsetX,
		Y: int(p.Y*e.cfg.Scale) + e.cfg.OffsetY,
	}
}

// Update records one trajectory point, recomputes the running mean error and redraws the
// canvas, which is returned. Positions that fall outside of the canvas are rejected with
// ErrOutOfCanvas and leave the evaluator untouched.
func (e *Evaluator) Update(estimated, reference r3.Vector) (*image.RGBA, error) {
	est, ref := GroundPlane(estimated), GroundPlane(reference)
	if !finite(est) || !finite(ref) {
		return nil, errors.Errorf("frame %d: position is not finite", len(e.errors))
	}
	estPx, refPx := e.MapToCanvas(est), e.MapToCanvas(ref)
	for _, px := range []image.Point{estPx, refPx} {
		if !px.In(e.canvas.Bounds()) {
			return nil, errors.Wrapf(ErrOutOfCanvas, "frame %d: pixel %v for estimated (%.3f, %.3f) reference (%.3f, %.3f)",
				len(e.errors), px, est.X, est.Y, ref.X, ref.Y)
		}
	}

	dist := est.Sub(ref).Norm()
	e.points = append(e.points, Point{Estimated: estimated, Reference: reference})
	e.errors = append(e.errors, dist)
	e.mean = stat.Mean(e.errors, nil)

	rimage.FillCircle(e.dc, float64(estPx.X)+0.5, float64(estPx.Y)+0.5, estimatedRadius, estimatedColor)
	rimage.FillCircle(e.dc, float64(refPx.X)+0.5, float64(refPx.Y)+0.5, referenceRadius, referenceColor)
	rimage.FillRectangle(e.dc, bannerRect, bannerColor)
	rimage.DrawString(e.dc, fmt.Sprintf("[AvgError] %2.4fm", e.mean), textOrigin, textColor, textSize)

	e.logger.Debugw("trajectory updated", "frame", len(e.errors)-1, "error", dist, "mean_error", e.mean)
	return e.canvas, nil
}

// Canvas returns the trajectory canvas.
func (e *Evaluator) Canvas() *image.RGBA {
	return e.canvas
}

// Errors returns a copy of the per-frame error series.
func (e *Evaluator) Errors() []float64 {
	return append([]float64{}, e.errors...)
}

// MeanError returns the mean of the error series, 0 before any update.
func (e *Evaluator) MeanError() float64 {
	return e.mean
}

// Points returns a copy of the accumulated trajectory.
func (e *Evaluator) Points() []Point {
	return append([]Point{}, e.points...)
}

func finite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
