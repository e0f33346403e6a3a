package keypoints

import (
	"context"
	"math/bits"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/vo/vision/correspondence"
)

// A Matcher pairs the keypoints of the previous frame with those of the current frame.
// Besides the correspondence record it returns, for each current keypoint, the index of its
// match in the previous frame or -1.
type Matcher interface {
	Match(ctx context.Context, prev, cur *Detection) (correspondence.Record, []float64, error)
}

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	MaxDist      int  `json:"max_dist"`
}

// Validate ensures all parts of the MatchingConfig are valid.
func (cfg *MatchingConfig) Validate(path string) error {
	if cfg.MaxDist < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_dist should be >= 0"))
	}
	return nil
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors.
type DescriptorMatch struct {
	Idx1 int
	Idx2 int
	Dist int
}

// HammingDistance counts the bits that differ between two descriptors.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Errorf("descriptors have different lengths %d and %d", len(d1), len(d2))
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist, nil
}

// DescriptorsHammingDistance returns the matrix of distances between every pair of descriptors.
func DescriptorsHammingDistance(desc1, desc2 []Descriptor) ([][]int, error) {
	distances := make([][]int, len(desc1))
	for i, d1 := range desc1 {
		distances[i] = make([]int, len(desc2))
		for j, d2 := range desc2 {
			d, err := HammingDistance(d1, d2)
			if err != nil {
				return nil, err
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}

// argMinPerRow returns the column of the smallest value of each row, the first one on ties.
func argMinPerRow(distances [][]int) []int {
	out := make([]int, len(distances))
	for i, row := range distances {
		best := 0
		for j, d := range row {
			if d < row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

func transpose(distances [][]int, cols int) [][]int {
	out := make([][]int, cols)
	for j := range out {
		out[j] = make([]int, len(distances))
		for i := range distances {
			out[j][i] = distances[i][j]
		}
	}
	return out
}

// MatchDescriptors takes 2 sets of descriptors and performs matching. Matches are sorted by
// increasing distance.
func MatchDescriptors(desc1, desc2 []Descriptor, cfg *MatchingConfig, logger golog.Logger) ([]DescriptorMatch, error) {
	if len(desc1) == 0 || len(desc2) == 0 {
		return []DescriptorMatch{}, nil
	}
	distances, err := DescriptorsHammingDistance(desc1, desc2)
	if err != nil {
		return nil, err
	}
	indices2 := argMinPerRow(distances)
	var matches1 []int
	if cfg.DoCrossCheck {
		matches1 = argMinPerRow(transpose(distances, len(desc2)))
	}

	matches := make([]DescriptorMatch, 0, len(desc1))
	dists := make([]float64, 0, len(desc1))
	for i, j := range indices2 {
		if cfg.DoCrossCheck && matches1[j] != i {
			continue
		}
		d := distances[i][j]
		if cfg.MaxDist > 0 && d >= cfg.MaxDist {
			continue
		}
		matches = append(matches, DescriptorMatch{Idx1: i, Idx2: j, Dist: d})
		dists = append(dists, float64(d))
	}

	sortedIndices := make([]int, len(dists))
	floats.Argsort(dists, sortedIndices)
	sorted := make([]DescriptorMatch, len(matches))
	for i, idx := range sortedIndices {
		sorted[i] = matches[idx]
	}
	logger.Debugw("matched descriptors", "query", len(desc1), "train", len(desc2), "matches", len(sorted))
	return sorted, nil
}

type bruteForceMatcher struct {
	cfg    *MatchingConfig
	logger golog.Logger
}

// NewMatcher returns a brute force Hamming matcher.
func NewMatcher(cfg *MatchingConfig, logger golog.Logger) (Matcher, error) {
	if err := cfg.Validate("matcher"); err != nil {
		return nil, err
	}
	return &bruteForceMatcher{cfg: cfg, logger: logger}, nil
}

// Match queries every current descriptor against the previous ones. Scores are
// 1 - distance / descriptor bits.
func (m *bruteForceMatcher) Match(ctx context.Context, prev, cur *Detection) (correspondence.Record, []float64, error) {
	if err := ctx.Err(); err != nil {
		return correspondence.Record{}, nil, err
	}
	matchIdx := make([]float64, cur.Len())
	for i := range matchIdx {
		matchIdx[i] = -1
	}
	if prev.Len() == 0 || cur.Len() == 0 {
		return correspondence.Record{}, matchIdx, nil
	}
	if len(prev.Descriptors) != prev.Len() || len(cur.Descriptors) != cur.Len() {
		return correspondence.Record{}, nil, errors.New("cannot match keypoints without descriptors")
	}
	nBits := 64 * len(cur.Descriptors[0])
	if nBits == 0 {
		return correspondence.Record{}, nil, errors.New("cannot match empty descriptors")
	}
	matches, err := MatchDescriptors(cur.Descriptors, prev.Descriptors, m.cfg, m.logger)
	if err != nil {
		return correspondence.Record{}, nil, err
	}

	match0 := make([]r2.Point, len(matches))
	match1 := make([]r2.Point, len(matches))
	score := make([]float64, len(matches))
	for k, match := range matches {
		match0[k] = prev.Points[match.Idx2]
		match1[k] = cur.Points[match.Idx1]
		score[k] = 1 - float64(match.Dist)/float64(nBits)
		matchIdx[match.Idx1] = float64(match.Idx2)
	}
	rec, err := correspondence.NewRecord(match0, match1, score)
	if err != nil {
		return correspondence.Record{}, nil, err
	}
	return rec, matchIdx, nil
}
