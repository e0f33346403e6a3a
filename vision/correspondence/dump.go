package correspondence

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/vo/utils"
)

// DumpColumns is the width of a keypoint dump: x, y, match index, score.
const DumpColumns = 4

// KeypointTable stacks the keypoints of a single frame with their match column and scores.
// matches[k] is the index of the keypoint matched to points[k] in the previous frame, or -1.
func KeypointTable(points []r2.Point, matches, scores []float64) (*mat.Dense, error) {
	if len(points) != len(matches) || len(points) != len(scores) {
		return nil, errors.Wrapf(ErrLengthMismatch, "got %d keypoints, %d matches and %d scores",
			len(points), len(matches), len(scores))
	}
	if len(points) == 0 {
		return nil, nil
	}
	data := make([]float64, 0, len(points)*DumpColumns)
	for k, p := range points {
		data = append(data, p.X, p.Y, matches[k], scores[k])
	}
	return mat.NewDense(len(points), DumpColumns, data), nil
}

// SaveKeypointDump writes the keypoint table of one frame to path as a single .npy table.
func SaveKeypointDump(path string, points []r2.Point, matches, scores []float64) (err error) {
	table, err := KeypointTable(points, matches, scores)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	buf := bufio.NewWriter(f)
	if table == nil {
		err = npyio.Write(buf, []float64{})
	} else {
		err = npyio.Write(buf, table)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot write keypoint dump %q", path)
	}
	return buf.Flush()
}
