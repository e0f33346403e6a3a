package keypoints

import (
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/vo/rimage"
)

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
)

const defaultBlurSigma = 2.

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type.
// The same seed always gives the same pairs, so descriptors of different runs are comparable.
func GenerateSamplePairs(dist SamplingType, n, patchSize int, seed int64) *SamplePairs {
	//nolint:gosec
	rnd := rand.New(rand.NewSource(seed))
	xs0 := sampleIntegers(rnd, patchSize, n, dist)
	ys0 := sampleIntegers(rnd, patchSize, n, dist)
	xs1 := sampleIntegers(rnd, patchSize, n, dist)
	ys1 := sampleIntegers(rnd, patchSize, n, dist)
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

func sampleIntegers(rnd *rand.Rand, patchSize, n int, sampling SamplingType) []int {
	vMin := int(math.Round(-(float64(patchSize) - 2) / 2.))
	vMax := int(math.Round(float64(patchSize) / 2.))
	out := make([]int, n)
	for i := range out {
		switch sampling {
		case normal:
			// isotropic gaussian with sigma^2 = patchSize^2 / 25
			v := int(math.Round(rnd.NormFloat64() * float64(patchSize) / 5.))
			if v < vMin {
				v = vMin
			}
			if v > vMax {
				v = vMax
			}
			out[i] = v
		case uniform:
			out[i] = vMin + rnd.Intn(vMax-vMin+1)
		default:
			out[i] = vMin + rnd.Intn(vMax-vMin+1)
		}
	}
	return out
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N         int          `json:"n"` // number of samples taken
	Sampling  SamplingType `json:"sampling"`
	PatchSize int          `json:"patch_size"`
	Seed      int64        `json:"seed"`
	BlurSigma float64      `json:"blur_sigma"`
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (cfg *BRIEFConfig) Validate(path string) error {
	if cfg.N <= 0 || cfg.N%64 != 0 {
		return utils.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if cfg.Sampling != uniform && cfg.Sampling != normal {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown sampling %d", cfg.Sampling))
	}
	if cfg.PatchSize < 5 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 5"))
	}
	if cfg.BlurSigma < 0 {
		return utils.NewConfigValidationError(path, errors.New("blur_sigma should be >= 0"))
	}
	return nil
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps.
// Keypoints whose patch does not fit in the image get an all zero descriptor.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps []image.Point, cfg *BRIEFConfig) ([]Descriptor, error) {
	if sp.N != cfg.N || len(sp.P0) != sp.N || len(sp.P1) != sp.N {
		return nil, errors.Errorf("got %d sample pairs, expected %d", len(sp.P0), cfg.N)
	}
	sigma := cfg.BlurSigma
	if sigma == 0 {
		sigma = defaultBlurSigma
	}
	blurred := rimage.MakeGray(imaging.Blur(img, sigma))
	offset := img.Bounds().Min

	descs := make([]Descriptor, len(kps))
	bnd := blurred.Bounds()
	halfSize := cfg.PatchSize / 2
	for k, p := range kps {
		kp := p.Sub(offset)
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(Descriptor, sp.N/64)
		if !patchInBounds(kp, halfSize, bnd) {
			descs[k] = descriptor
			continue
		}
		for i := 0; i < sp.N; i++ {
			p0Val := blurred.GrayAt(kp.X+sp.P0[i].X, kp.Y+sp.P0[i].Y).Y
			p1Val := blurred.GrayAt(kp.X+sp.P1[i].X, kp.Y+sp.P1[i].Y).Y
			if p0Val > p1Val {
				// This flips the bit at i%64 to 1.
				descriptor[i/64] |= 1 << (i % 64)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}

func patchInBounds(kp image.Point, halfSize int, bnd image.Rectangle) bool {
	corners := []image.Point{
		{kp.X + halfSize, kp.Y + halfSize},
		{kp.X + halfSize, kp.Y - halfSize},
		{kp.X - halfSize, kp.Y + halfSize},
		{kp.X - halfSize, kp.Y - halfSize},
	}
	for _, c := range corners {
		if !c.In(bnd) {
			return false
		}
	}
	return true
}
