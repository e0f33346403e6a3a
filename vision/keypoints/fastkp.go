package keypoints

import (
	"image"
	"sort"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	vutils "go.viam.com/vo/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	// Threshold is the minimum contrast, relative to the full 8 bit range, between the
	// center pixel and a circle pixel.
	Threshold      float64 `json:"threshold"`
	NMatchesCircle int     `json:"n_matches_circle"`
	NMSWinSize     int     `json:"nms_win_size"`
	// MaxKeypoints keeps the strongest keypoints only; 0 keeps all of them.
	MaxKeypoints int `json:"max_keypoints"`
}

// Validate ensures all parts of the FASTConfig are valid.
func (cfg *FASTConfig) Validate(path string) error {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return utils.NewConfigValidationError(path, errors.New("threshold should be in (0, 1)"))
	}
	if cfg.NMatchesCircle < 1 || cfg.NMatchesCircle > len(CircleIdx) {
		return utils.NewConfigValidationError(path, errors.Errorf("n_matches_circle should be in [1, %d]", len(CircleIdx)))
	}
	if cfg.NMSWinSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	if cfg.MaxKeypoints < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_keypoints should be >= 0"))
	}
	return nil
}

var (
	// CrossIdx is the 4 point neighborhood used by the high speed test.
	CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx is the Bresenham circle of radius 3, clockwise from the top.
	CircleIdx = []image.Point{
		{0, -3}, {1, -3}, {2, -2}, {3, -1},
		{3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
		{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
)

const circleRadius = 3

// GetPointValuesInNeighborhood returns the gray values of the pixels at coords offset by
// each point of the neighborhood.
func GetPointValuesInNeighborhood(img *image.Gray, coords image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, p := range neighborhood {
		vals[i] = float64(img.GrayAt(coords.X+p.X, coords.Y+p.Y).Y)
	}
	return vals
}

// isValidSliceVals returns true if s holds at least n contiguous positive values, wrapping
// around the end of the slice.
func isValidSliceVals(s []float64, n int) bool {
	if n > len(s) || len(s) == 0 {
		return false
	}
	run := 0
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns 1 where s is strictly greater than t, 0 elsewhere.
func getBrighterValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			out[i] = 1
		}
	}
	return out
}

// getDarkerValues returns 1 where s is strictly lower than t, 0 elsewhere.
func getDarkerValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			out[i] = 1
		}
	}
	return out
}

// maskedDifferences returns (vals - center) where mask is set, 0 elsewhere.
func maskedDifferences(vals, mask []float64, center float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = mask[i] * (v - center)
	}
	return out
}

// fastScore runs the segment test at p and returns the corner response, 0 when p is not a corner.
func fastScore(img *image.Gray, p image.Point, cfg *FASTConfig) float64 {
	center := float64(img.GrayAt(p.X, p.Y).Y)
	t := cfg.Threshold * 255

	// any arc of n circle pixels contains at least n/4 of the cross pixels
	cross := GetPointValuesInNeighborhood(img, p, CrossIdx)
	minCross := float64(cfg.NMatchesCircle / 4)
	if sumOfPositiveValuesSlice(getBrighterValues(cross, center+t)) < minCross &&
		sumOfPositiveValuesSlice(getDarkerValues(cross, center-t)) < minCross {
		return 0
	}

	circle := GetPointValuesInNeighborhood(img, p, CircleIdx)
	score := 0.
	if brighter := getBrighterValues(circle, center+t); isValidSliceVals(brighter, cfg.NMatchesCircle) {
		score = sumOfPositiveValuesSlice(maskedDifferences(circle, brighter, center))
	}
	if darker := getDarkerValues(circle, center-t); isValidSliceVals(darker, cfg.NMatchesCircle) {
		if s := -sumOfNegativeValuesSlice(maskedDifferences(circle, darker, center)); s > score {
			score = s
		}
	}
	return score / (255 * float64(len(CircleIdx)))
}

// ComputeFAST computes the location of FAST keypoints and their scores in [0, 1], strongest first.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) ([]image.Point, []float64) {
	return computeFAST(img, cfg, circleRadius)
}

// computeFAST only considers pixels at least margin pixels away from the image border.
func computeFAST(img *image.Gray, cfg *FASTConfig, margin int) ([]image.Point, []float64) {
	if margin < circleRadius {
		margin = circleRadius
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	scores := make([]float64, w*h)
	vutils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		if x < margin || y < margin || x >= w-margin || y >= h-margin {
			return
		}
		scores[y*w+x] = fastScore(img, image.Point{x + bounds.Min.X, y + bounds.Min.Y}, cfg)
	})

	// non maximum suppression, ties go to the first pixel in row major order
	half := cfg.NMSWinSize / 2
	kps := make([]image.Point, 0)
	kpScores := make([]float64, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := scores[y*w+x]
			if s <= 0 || !isLocalMaximum(scores, w, h, x, y, half) {
				continue
			}
			kps = append(kps, image.Point{x + bounds.Min.X, y + bounds.Min.Y})
			kpScores = append(kpScores, s)
		}
	}

	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return kpScores[order[i]] > kpScores[order[j]]
	})
	if cfg.MaxKeypoints > 0 && len(order) > cfg.MaxKeypoints {
		order = order[:cfg.MaxKeypoints]
	}
	outPts := make([]image.Point, len(order))
	outScores := make([]float64, len(order))
	for i, idx := range order {
		outPts[i] = kps[idx]
		outScores[i] = kpScores[idx]
	}
	return outPts, outScores
}

func isLocalMaximum(scores []float64, w, h, x, y, half int) bool {
	s := scores[y*w+x]
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			other := scores[ny*w+nx]
			if other > s || (other == s && ny*w+nx < y*w+x) {
				return false
			}
		}
	}
	return true
}
