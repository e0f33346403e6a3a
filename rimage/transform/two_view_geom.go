package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// MinPointsFundamental is the number of correspondences needed by the 8 point algorithm.
const MinPointsFundamental = 8

// ErrTooFewPoints is returned when there are not enough correspondences to estimate a fundamental matrix.
var ErrTooFewPoints = errors.New("sets of points must have at least 8 elements")

// GetEssentialMatrixFromFundamental returns the essential matrix from the fundamental matrix and intrinsics parameters.
func GetEssentialMatrixFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	var essMat, tmp mat.Dense
	tmp.Mul(k2.T(), f)
	essMat.Mul(&tmp, k1)
	// enforce two equal singular values and a null one
	mats, err := performSVD(&essMat)
	if err != nil {
		return nil, err
	}
	S := eye(3)
	S.Set(2, 2, 0)

	var us, out mat.Dense
	us.Mul(mats.U, S)
	out.Mul(&us, mats.VT)
	return &out, nil
}

// DecomposeEssentialMatrix decomposes the Essential matrix into 2 possible 3D rotations and a 3D translation
// of unit norm.
func DecomposeEssentialMatrix(essMat *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense, error) {
	mats, err := performSVD(essMat)
	if err != nil {
		return nil, nil, nil, err
	}
	// rotations need det(U) = det(V) = 1
	if mat.Det(mats.U) < 0 {
		mats.U.Scale(-1, mats.U)
	}
	if mat.Det(mats.VT) < 0 {
		mats.VT.Scale(-1, mats.VT)
	}
	W := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		-1, 0, 0,
		0, 0, 1,
	})
	var R1, R2, tmp mat.Dense
	// UWV^T
	tmp.Mul(mats.U, W)
	R1.Mul(&tmp, mats.VT)
	// UW^TV^T
	tmp.Mul(mats.U, W.T())
	R2.Mul(&tmp, mats.VT)
	U3 := mats.U.ColView(2)
	t := mat.NewDense(3, 1, []float64{U3.AtVec(0), U3.AtVec(1), U3.AtVec(2)})
	return &R1, &R2, t, nil
}

// Convert2DPointsToHomogeneousPoints converts float64 image coordinates to homogeneous float64 coordinates.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// ComputeFundamentalMatrixAllPoints compute the fundamental matrix F such that x2^T F x1 = 0
// from all points. The result has unit Frobenius norm.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point, normalize bool) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < MinPointsFundamental {
		return nil, errors.Wrapf(ErrTooFewPoints, "got %d", len(pts1))
	}
	nPoints := len(pts1)

	var points1, points2 []r2.Point
	var T1, T2 *mat.Dense

	// if normalize, normalize points and get transform
	if normalize {
		points1, T1 = normalizePoints(pts1)
		points2, T2 = normalizePoints(pts2)
	} else {
		points1 = append([]r2.Point{}, pts1...)
		points2 = append([]r2.Point{}, pts2...)
		T1 = eye(3)
		T2 = eye(3)
	}

	// the 8 point system needs at least 9 rows for a full SVD
	nRows := nPoints
	if nRows < 9 {
		nRows = 9
	}
	m := mat.NewDense(nRows, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}

	mats1, err := performSVD(m)
	if err != nil {
		return nil, err
	}
	lastColV := mats1.V.ColView(8)
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, lastColVdata)

	// enforce rank 2 of F
	mats2, err := performSVD(F)
	if err != nil {
		return nil, err
	}
	mats2.S.Set(2, 2, 0)
	var us, fHat, tmp, out mat.Dense
	us.Mul(mats2.U, mats2.S)
	fHat.Mul(&us, mats2.VT)

	// undo the normalization: T2^T @ F @ T1
	tmp.Mul(T2.T(), &fHat)
	out.Mul(&tmp, T1)
	norm := mat.Norm(&out, 2)
	if norm == 0 {
		return nil, errors.New("degenerate fundamental matrix")
	}
	out.Scale(1/norm, &out)
	return &out, nil
}

// RANSACConfig holds the parameters of the robust fundamental matrix estimation.
type RANSACConfig struct {
	Iterations int `json:"iterations"`
	// Threshold is the maximum Sampson distance, in pixels, of an inlier.
	Threshold float64 `json:"threshold_px"`
	Seed      int64   `json:"seed"`
}

// Validate ensures all parts of the RANSACConfig are valid.
func (cfg *RANSACConfig) Validate(path string) error {
	if cfg.Iterations < 1 {
		return utils.NewConfigValidationError(path, errors.New("iterations should be >= 1"))
	}
	if cfg.Threshold <= 0 {
		return utils.NewConfigValidationError(path, errors.New("threshold_px should be > 0"))
	}
	return nil
}

// SampsonDistance returns the first order approximation of the squared reprojection error of
// the correspondence p1 <-> p2 under the fundamental matrix f.
func SampsonDistance(f *mat.Dense, p1, p2 r2.Point) float64 {
	x1 := r3.Vector{X: p1.X, Y: p1.Y, Z: 1}
	x2 := r3.Vector{X: p2.X, Y: p2.Y, Z: 1}
	fx1 := mulVec(f, x1)
	ftx2 := mulVec(f.T(), x2)
	num := x2.Dot(fx1)
	den := fx1.X*fx1.X + fx1.Y*fx1.Y + ftx2.X*ftx2.X + ftx2.Y*ftx2.Y
	if den == 0 {
		return math.Inf(1)
	}
	return num * num / den
}

// ComputeFundamentalMatrixRANSAC estimates the fundamental matrix from random minimal samples,
// keeps the model with the most inliers and refits it on all of them. The returned mask flags
// the inliers.
func ComputeFundamentalMatrixRANSAC(pts1, pts2 []r2.Point, cfg *RANSACConfig) (*mat.Dense, []bool, error) {
	if len(pts1) != len(pts2) {
		return nil, nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < MinPointsFundamental {
		return nil, nil, errors.Wrapf(ErrTooFewPoints, "got %d", len(pts1))
	}
	//nolint:gosec
	rnd := rand.New(rand.NewSource(cfg.Seed))
	thresh2 := cfg.Threshold * cfg.Threshold

	var bestMask []bool
	bestCount := -1
	sample1 := make([]r2.Point, MinPointsFundamental)
	sample2 := make([]r2.Point, MinPointsFundamental)
	for it := 0; it < cfg.Iterations; it++ {
		perm := rnd.Perm(len(pts1))
		for i := 0; i < MinPointsFundamental; i++ {
			sample1[i] = pts1[perm[i]]
			sample2[i] = pts2[perm[i]]
		}
		f, err := ComputeFundamentalMatrixAllPoints(sample1, sample2, true)
		if err != nil {
			continue
		}
		mask, count := inliers(f, pts1, pts2, thresh2)
		if count > bestCount {
			bestCount, bestMask = count, mask
		}
		if count == len(pts1) {
			break
		}
	}
	if bestCount < MinPointsFundamental {
		return nil, nil, errors.Wrapf(ErrTooFewPoints, "only %d inliers", bestCount)
	}

	in1 := make([]r2.Point, 0, bestCount)
	in2 := make([]r2.Point, 0, bestCount)
	for i, ok := range bestMask {
		if ok {
			in1 = append(in1, pts1[i])
			in2 = append(in2, pts2[i])
		}
	}
	f, err := ComputeFundamentalMatrixAllPoints(in1, in2, true)
	if err != nil {
		return nil, nil, err
	}
	return f, bestMask, nil
}

func inliers(f *mat.Dense, pts1, pts2 []r2.Point, thresh2 float64) ([]bool, int) {
	mask := make([]bool, len(pts1))
	count := 0
	for i := range pts1 {
		if SampsonDistance(f, pts1[i], pts2[i]) < thresh2 {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	// compute centroid of points
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := 1.
	if d > 0 {
		scale = math.Sqrt(2) / d
	}
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T
}

func mulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix *mat.Dense) (*matsSVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}, nil
}
