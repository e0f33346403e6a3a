package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CamPose stores the 3x4 pose matrix [R|t] as well as the 3D Rotation and Translation matrices.
// A point X expressed in the first camera frame is R*X + t in the second camera frame.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	U3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{U3.AtVec(0), U3.AtVec(1), U3.AtVec(2)})
	rot := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix.
func GetPossibleCameraPoses(essMat *mat.Dense) ([]*mat.Dense, error) {
	R1, R2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	var tOpp mat.Dense
	tOpp.Scale(-1, t)
	poses := make([]*mat.Dense, 4)
	for i := range poses {
		poses[i] = &mat.Dense{}
	}
	poses[0].Augment(R1, t)
	poses[1].Augment(R1, &tOpp)
	poses[2].Augment(R2, t)
	poses[3].Augment(R2, &tOpp)
	return poses, nil
}

// getCrossProductMatFromPoint returns the cross product with point p matrix.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// GetLinearTriangulatedPoints computes triangulated 3D points with linear method. pts1 and pts2
// are normalized camera rays, the first camera sits at the origin and the second one at pose.
func GetLinearTriangulatedPoints(pose *mat.Dense, pts1, pts2 []r3.Vector) ([]r3.Vector, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	P := mat.NewDense(3, 4, nil)
	P.Set(0, 0, 1)
	P.Set(1, 1, 1)
	P.Set(2, 2, 1)
	pts3d := make([]r3.Vector, len(pts1))
	for i := range pts1 {
		var p1CrossP, p2CrossPdash, A mat.Dense
		p1CrossP.Mul(getCrossProductMatFromPoint(pts1[i]), P)
		p2CrossPdash.Mul(getCrossProductMatFromPoint(pts2[i]), pose)
		A.Stack(&p1CrossP, &p2CrossPdash)
		var svd mat.SVD
		if ok := svd.Factorize(&A, mat.SVDFull); !ok {
			return nil, errors.New("failed to factorize A")
		}
		// Determine the rank of the A matrix with a near zero condition threshold.
		const rcond = 1e-15
		if svd.Rank(rcond) == 0 {
			return nil, errors.New("zero rank system")
		}
		var V mat.Dense
		svd.VTo(&V)
		// the solution is the right singular vector of the smallest singular value
		w := V.At(3, 3)
		pts3d[i] = r3.Vector{
			X: V.At(0, 3) / w,
			Y: V.At(1, 3) / w,
			Z: V.At(2, 3) / w,
		}
	}
	return pts3d, nil
}

// GetNumberPositiveDepth returns how many triangulated points lie in front of both cameras.
func GetNumberPositiveDepth(pose *mat.Dense, pts1, pts2 []r3.Vector) (int, error) {
	pts3D, err := GetLinearTriangulatedPoints(pose, pts1, pts2)
	if err != nil {
		return 0, err
	}
	rot3 := r3.Vector{X: pose.At(2, 0), Y: pose.At(2, 1), Z: pose.At(2, 2)}
	tz := pose.At(2, 3)
	nPositiveDepth := 0
	for _, pt := range pts3D {
		if pt.Z > 0 && rot3.Dot(pt)+tz > 0 {
			nPositiveDepth++
		}
	}
	return nPositiveDepth, nil
}

// GetCorrectCameraPose returns the best pose, which is the pose with the most positive depth values.
func GetCorrectCameraPose(poses []*mat.Dense, pts1, pts2 []r3.Vector) (*mat.Dense, error) {
	if len(poses) == 0 {
		return nil, errors.New("no candidate pose")
	}
	maxNumPosDepth := -1
	var correctPose *mat.Dense
	for _, pose := range poses {
		nPosDepth, err := GetNumberPositiveDepth(pose, pts1, pts2)
		if err != nil {
			return nil, err
		}
		if nPosDepth > maxNumPosDepth {
			maxNumPosDepth = nPosDepth
			correctPose = pose
		}
	}
	return mat.DenseCopyOf(correctPose), nil
}

// EstimateNewPose estimates the pose of the camera in the second set of points wrt the pose of the camera in the first
// set of points
// pts1 and pts2 are matches in 2 images (successive in time or from 2 different cameras of the same scene
// at the same time). The translation has unit norm.
func EstimateNewPose(pts1, pts2 []r2.Point, intrinsics *PinholeCameraIntrinsics) (*CamPose, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	fundamentalMatrix, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	if err != nil {
		return nil, err
	}
	return poseFromFundamental(fundamentalMatrix, pts1, pts2, intrinsics)
}

// EstimateNewPoseRANSAC is EstimateNewPose with outlier rejection. The returned mask flags the
// correspondences used for the estimation.
func EstimateNewPoseRANSAC(pts1, pts2 []r2.Point, intrinsics *PinholeCameraIntrinsics, cfg *RANSACConfig,
) (*CamPose, []bool, error) {
	fundamentalMatrix, mask, err := ComputeFundamentalMatrixRANSAC(pts1, pts2, cfg)
	if err != nil {
		return nil, nil, err
	}
	in1 := make([]r2.Point, 0, len(pts1))
	in2 := make([]r2.Point, 0, len(pts2))
	for i, ok := range mask {
		if ok {
			in1 = append(in1, pts1[i])
			in2 = append(in2, pts2[i])
		}
	}
	pose, err := poseFromFundamental(fundamentalMatrix, in1, in2, intrinsics)
	if err != nil {
		return nil, nil, err
	}
	return pose, mask, nil
}

func poseFromFundamental(f *mat.Dense, pts1, pts2 []r2.Point, intrinsics *PinholeCameraIntrinsics) (*CamPose, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	k := intrinsics.GetCameraMatrix()
	essentialMatrix, err := GetEssentialMatrixFromFundamental(k, k, f)
	if err != nil {
		return nil, err
	}
	poses, err := GetPossibleCameraPoses(essentialMatrix)
	if err != nil {
		return nil, err
	}
	pose, err := GetCorrectCameraPose(poses, intrinsics.NormalizedPoints(pts1), intrinsics.NormalizedPoints(pts2))
	if err != nil {
		return nil, err
	}
	return NewCamPoseFromMat(pose), nil
}
