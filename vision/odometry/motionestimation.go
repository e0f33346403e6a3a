// Package odometry estimates the camera trajectory of a monocular video from the motion of
// matched keypoints between consecutive frames.
package odometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Motion3D contains the estimated 3D rotation and translation from 2 frames.
type Motion3D struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewMotion3DFromRotationTranslation returns a new pointer to Motion3D from a rotation and a translation matrix.
func NewMotion3DFromRotationTranslation(rotation, translation *mat.Dense) *Motion3D {
	return &Motion3D{
		Rotation:    rotation,
		Translation: translation,
	}
}

// NewIdentityMotion3D returns the motion with no rotation and no translation.
func NewIdentityMotion3D() *Motion3D {
	rot := mat.NewDense(3, 3, nil)
	rot.Set(0, 0, 1)
	rot.Set(1, 1, 1)
	rot.Set(2, 2, 1)
	return NewMotion3DFromRotationTranslation(rot, mat.NewDense(3, 1, nil))
}

// Clone returns a deep copy of the motion.
func (m *Motion3D) Clone() *Motion3D {
	return NewMotion3DFromRotationTranslation(mat.DenseCopyOf(m.Rotation), mat.DenseCopyOf(m.Translation))
}

// Compose chains delta, with its translation scaled by scale, after m:
// t = t + scale * R * dt and R = R * dR. m is left untouched.
func (m *Motion3D) Compose(delta *Motion3D, scale float64) *Motion3D {
	var rt, rot mat.Dense
	rt.Mul(m.Rotation, delta.Translation)
	rt.Scale(scale, &rt)
	rt.Add(m.Translation, &rt)
	rot.Mul(m.Rotation, delta.Rotation)
	return NewMotion3DFromRotationTranslation(&rot, &rt)
}

// TranslationVector returns the translation as a vector.
func (m *Motion3D) TranslationVector() r3.Vector {
	return r3.Vector{X: m.Translation.At(0, 0), Y: m.Translation.At(1, 0), Z: m.Translation.At(2, 0)}
}

// RotationVector returns the rotation in axis-angle form, the norm of the vector being the
// angle in radians.
func (m *Motion3D) RotationVector() r3.Vector {
	r := m.Rotation
	cosAngle := (mat.Trace(r) - 1) / 2
	cosAngle = math.Max(-1, math.Min(1, cosAngle))
	angle := math.Acos(cosAngle)
	if angle < 1e-12 {
		return r3.Vector{}
	}
	axis := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	if axis.Norm() < 1e-9 {
		// angle close to pi, the axis is read on the diagonal of (R + I) / 2
		axis = r3.Vector{
			X: math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2)),
			Y: math.Copysign(math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2)), r.At(0, 1)+r.At(1, 0)),
			Z: math.Copysign(math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2)), r.At(0, 2)+r.At(2, 0)),
		}
	}
	return axis.Normalize().Mul(angle)
}
