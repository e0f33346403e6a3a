// Package keypoints contains the implementation of keypoints in an image. For now:
// - FAST keypoints
// - BRIEF descriptors
// - brute force Hamming matching
// - drawing of keypoints and their correspondences.
package keypoints

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// KeyPoint is a detected corner and its detector response.
type KeyPoint struct {
	Point r2.Point
	Score float64
}

// Descriptor is a binary descriptor packed into 64 bit words.
type Descriptor []uint64

// Detection groups the keypoints found in one frame with their scores and descriptors.
// All three slices share the same indexing.
type Detection struct {
	Points      []r2.Point
	Scores      []float64
	Descriptors []Descriptor
}

// Len returns the number of keypoints in the detection.
func (d *Detection) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Points)
}

// Validate ensures the per keypoint slices line up.
func (d *Detection) Validate() error {
	if len(d.Scores) != len(d.Points) {
		return errors.Errorf("detection has %d points but %d scores", len(d.Points), len(d.Scores))
	}
	if d.Descriptors != nil && len(d.Descriptors) != len(d.Points) {
		return errors.Errorf("detection has %d points but %d descriptors", len(d.Points), len(d.Descriptors))
	}
	return nil
}

// KeyPoints returns the detection as a slice of KeyPoint.
func (d *Detection) KeyPoints() []KeyPoint {
	kps := make([]KeyPoint, d.Len())
	for i := range kps {
		kps[i] = KeyPoint{Point: d.Points[i], Score: d.Scores[i]}
	}
	return kps
}

// convertImagePointSliceToFloatPointSlice is a helper to convert slice of image.Point to a slice of r2.Point.
func convertImagePointSliceToFloatPointSlice(pts []image.Point) []r2.Point {
	ptsOut := make([]r2.Point, len(pts))
	for i, pt := range pts {
		ptsOut[i] = r2.Point{
			X: float64(pt.X),
			Y: float64(pt.Y),
		}
	}
	return ptsOut
}
