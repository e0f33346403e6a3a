package transform

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

var kittiIntrinsics = &PinholeCameraIntrinsics{
	Width:  1241,
	Height: 376,
	Fx:     718.856,
	Fy:     718.856,
	Ppx:    607.1928,
	Ppy:    185.2157,
}

// syntheticMotion returns the projections of random scene points in two cameras, the second
// one being moved by rotation and translation.
func syntheticMotion(t *testing.T, n int, rotation *mat.Dense, translation r3.Vector) ([]r2.Point, []r2.Point) {
	t.Helper()
	//nolint:gosec
	rnd := rand.New(rand.NewSource(3))
	pts1 := make([]r2.Point, 0, n)
	pts2 := make([]r2.Point, 0, n)
	for len(pts1) < n {
		p := r3.Vector{X: 8*rnd.Float64() - 4, Y: 2*rnd.Float64() - 1, Z: 5 + 20*rnd.Float64()}
		q := mulVec(rotation, p).Add(translation)
		x1, y1 := kittiIntrinsics.PointToPixel(p.X, p.Y, p.Z)
		x2, y2 := kittiIntrinsics.PointToPixel(q.X, q.Y, q.Z)
		pts1 = append(pts1, r2.Point{X: x1, Y: y1})
		pts2 = append(pts2, r2.Point{X: x2, Y: y2})
	}
	return pts1, pts2
}

func rotationY(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func TestCheckValid(t *testing.T) {
	test.That(t, kittiIntrinsics.CheckValid(), test.ShouldBeNil)
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
	bad := *kittiIntrinsics
	bad.Fx = 0
	test.That(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	k := kittiIntrinsics.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, kittiIntrinsics.Fx)
	test.That(t, k.At(1, 2), test.ShouldEqual, kittiIntrinsics.Ppy)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.0)
}

func TestIntrinsicsFromProjection(t *testing.T) {
	p := []float64{
		718.856, 0, 607.1928, 0,
		0, 718.856, 185.2157, 0,
		0, 0, 1, 0,
	}
	intrinsics, err := NewPinholeCameraIntrinsicsFromProjection(p, 1241, 376)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics, test.ShouldResemble, kittiIntrinsics)

	_, err = NewPinholeCameraIntrinsicsFromProjection(p[:11], 1241, 376)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPinholeCameraIntrinsicsFromProjection(p, 0, 376)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestFundamentalMatrixEpipolarConstraint(t *testing.T) {
	pts1, pts2 := syntheticMotion(t, 20, rotationY(0.05), r3.Vector{X: 0.1, Y: 0, Z: -1})
	f, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Norm(f, 2), test.ShouldAlmostEqual, 1.0)
	for i := range pts1 {
		test.That(t, SampsonDistance(f, pts1[i], pts2[i]), test.ShouldBeLessThan, 1e-6)
	}

	_, err = ComputeFundamentalMatrixAllPoints(pts1[:7], pts2[:7], true)
	test.That(t, errors.Is(err, ErrTooFewPoints), test.ShouldBeTrue)
	_, err = ComputeFundamentalMatrixAllPoints(pts1, pts2[:10], true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateNewPose(t *testing.T) {
	rotation := rotationY(0.05)
	translation := r3.Vector{X: 0.1, Y: 0, Z: -1}
	pts1, pts2 := syntheticMotion(t, 30, rotation, translation)

	pose, err := EstimateNewPose(pts1, pts2, kittiIntrinsics)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, pose.Rotation.At(i, j), test.ShouldAlmostEqual, rotation.At(i, j), 1e-6)
		}
	}
	unit := translation.Normalize()
	test.That(t, pose.Translation.At(0, 0), test.ShouldAlmostEqual, unit.X, 1e-6)
	test.That(t, pose.Translation.At(1, 0), test.ShouldAlmostEqual, unit.Y, 1e-6)
	test.That(t, pose.Translation.At(2, 0), test.ShouldAlmostEqual, unit.Z, 1e-6)
	r, c := pose.PoseMat.Dims()
	test.That(t, r, test.ShouldEqual, 3)
	test.That(t, c, test.ShouldEqual, 4)

	_, err = EstimateNewPose(pts1, pts2, nil)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestEstimateNewPoseRANSAC(t *testing.T) {
	rotation := rotationY(-0.03)
	translation := r3.Vector{X: 0, Y: 0, Z: -1}
	pts1, pts2 := syntheticMotion(t, 40, rotation, translation)
	outliers := map[int]bool{3: true, 11: true, 17: true, 25: true, 31: true}
	for i := range outliers {
		pts2[i] = pts2[i].Add(r2.Point{X: 60, Y: -45})
	}

	cfg := &RANSACConfig{Iterations: 300, Threshold: 1, Seed: 1}
	test.That(t, cfg.Validate("ransac"), test.ShouldBeNil)
	pose, mask, err := EstimateNewPoseRANSAC(pts1, pts2, kittiIntrinsics, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(mask), test.ShouldEqual, 40)
	for i, ok := range mask {
		if !outliers[i] {
			test.That(t, ok, test.ShouldBeTrue)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, pose.Rotation.At(i, j), test.ShouldAlmostEqual, rotation.At(i, j), 1e-3)
		}
	}
	test.That(t, pose.Translation.At(2, 0), test.ShouldAlmostEqual, -1, 1e-3)

	_, _, err = EstimateNewPoseRANSAC(pts1[:5], pts2[:5], kittiIntrinsics, cfg)
	test.That(t, errors.Is(err, ErrTooFewPoints), test.ShouldBeTrue)
	test.That(t, (&RANSACConfig{}).Validate("ransac"), test.ShouldNotBeNil)
}

func TestTriangulation(t *testing.T) {
	pose := mat.NewDense(3, 4, []float64{
		1, 0, 0, -1,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	p := r3.Vector{X: 0.5, Y: 0.2, Z: 4}
	q := p.Add(r3.Vector{X: -1, Y: 0, Z: 0})
	pts, err := GetLinearTriangulatedPoints(pose, []r3.Vector{p.Mul(1 / p.Z)}, []r3.Vector{q.Mul(1 / q.Z)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pts[0].X, test.ShouldAlmostEqual, p.X, 1e-9)
	test.That(t, pts[0].Y, test.ShouldAlmostEqual, p.Y, 1e-9)
	test.That(t, pts[0].Z, test.ShouldAlmostEqual, p.Z, 1e-9)

	n, err := GetNumberPositiveDepth(pose, []r3.Vector{p.Mul(1 / p.Z)}, []r3.Vector{q.Mul(1 / q.Z)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
}
