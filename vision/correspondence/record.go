// Package correspondence defines the matched keypoint pairs exchanged between two consecutive
// frames and their on-disk layout.
package correspondence

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// NumColumns is the width of a record table: match0 (x, y), match1 (x, y), score.
const NumColumns = 5

// ErrLengthMismatch is returned when match0, match1 and score do not have the same length.
var ErrLengthMismatch = errors.New("match0, match1 and score must have the same length")

// Record holds the correspondences between frame i (Match0) and frame i+1 (Match1).
// The k-th entries of Match0, Match1 and Score describe one correspondence.
// A Record is a value; its slices must not be modified once created.
type Record struct {
	Match0 []r2.Point
	Match1 []r2.Point
	Score  []float64
}

// NewRecord validates and copies the given correspondences into a new Record.
func NewRecord(match0, match1 []r2.Point, score []float64) (Record, error) {
	rec := Record{
		Match0: append([]r2.Point{}, match0...),
		Match1: append([]r2.Point{}, match1...),
		Score:  append([]float64{}, score...),
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Validate checks that all columns of the record are index aligned.
func (r Record) Validate() error {
	if len(r.Match0) != len(r.Match1) || len(r.Match0) != len(r.Score) {
		return errors.Wrapf(ErrLengthMismatch, "got len(match0)=%d len(match1)=%d len(score)=%d",
			len(r.Match0), len(r.Match1), len(r.Score))
	}
	return nil
}

// Len returns the number of correspondences.
func (r Record) Len() int {
	return len(r.Score)
}

// Table returns the record as an n x 5 matrix with columns match0 | match1 | score.
// It returns nil for an empty record since gonum matrices cannot have zero rows.
func (r Record) Table() (*mat.Dense, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Len() == 0 {
		return nil, nil
	}
	data := make([]float64, 0, r.Len()*NumColumns)
	for k := range r.Score {
		data = append(data, r.Match0[k].X, r.Match0[k].Y, r.Match1[k].X, r.Match1[k].Y, r.Score[k])
	}
	return mat.NewDense(r.Len(), NumColumns, data), nil
}

// FromTable builds a Record from an n x 5 matrix laid out like Table.
func FromTable(m mat.Matrix) (Record, error) {
	rows, cols := m.Dims()
	if cols != NumColumns {
		return Record{}, errors.Wrapf(ErrBadShape, "expected %d columns, got %d", NumColumns, cols)
	}
	rec := Record{
		Match0: make([]r2.Point, rows),
		Match1: make([]r2.Point, rows),
		Score:  make([]float64, rows),
	}
	for k := 0; k < rows; k++ {
		rec.Match0[k] = r2.Point{X: m.At(k, 0), Y: m.At(k, 1)}
		rec.Match1[k] = r2.Point{X: m.At(k, 2), Y: m.At(k, 3)}
		rec.Score[k] = m.At(k, 4)
	}
	return rec, nil
}
