package dataset

import (
	"bufio"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.viam.com/utils"

	"go.viam.com/vo/rimage/transform"
)

// kittiSource reads a KITTI odometry sequence laid out as
//
//	<root>/sequences/<seq>/image_0/*.png
//	<root>/sequences/<seq>/calib.txt
//	<root>/poses/<seq>.txt
type kittiSource struct {
	*fileSource
	start int
	poses []r3.Vector
}

func newKITTISource(cfg *Config, logger golog.Logger) (*kittiSource, error) {
	seqDir := filepath.Join(cfg.RootPath, "sequences", cfg.Sequence)
	glob := cfg.Glob
	if glob == "" {
		glob = "*.png"
	}
	files, err := listFrames(filepath.Join(seqDir, "image_0"), glob, cfg.Start, cfg.Length)
	if err != nil {
		return nil, err
	}

	intrinsics := cfg.Intrinsics
	if intrinsics == nil {
		width, height, err := frameSize(files[0])
		if err != nil {
			return nil, err
		}
		intrinsics, err = readCalibration(filepath.Join(seqDir, "calib.txt"), width, height)
		if err != nil {
			return nil, err
		}
	}

	posesFile := filepath.Join(cfg.RootPath, "poses", cfg.Sequence+".txt")
	if cfg.PosesFile != "" {
		posesFile = filepath.Join(cfg.RootPath, cfg.PosesFile)
	}
	var poses []r3.Vector
	if _, err := os.Stat(posesFile); err == nil {
		if poses, err = readPoses(posesFile); err != nil {
			return nil, err
		}
	} else {
		logger.Infow("no reference poses", "file", posesFile)
	}

	logger.Infow("kitti dataset opened", "sequence", cfg.Sequence, "frames", len(files), "poses", len(poses))
	return &kittiSource{
		fileSource: &fileSource{
			files:      files,
			intrinsics: intrinsics,
			logger:     logger,
		},
		start: cfg.Start,
		poses: poses,
	}, nil
}

// Reference returns the camera position of the i-th frame of the source.
func (ks *kittiSource) Reference(i int) (r3.Vector, bool) {
	i += ks.start
	if i < 0 || i >= len(ks.poses) {
		return r3.Vector{}, false
	}
	return ks.poses[i], true
}

func frameSize(path string) (int, int, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cannot open frame %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	conf, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cannot decode frame %q", path)
	}
	return conf.Width, conf.Height, nil
}

// readCalibration reads the intrinsics of the left gray camera from its P0 projection matrix.
func readCalibration(path string, width, height int) (*transform.PinholeCameraIntrinsics, error) {
	var intrinsics *transform.PinholeCameraIntrinsics
	err := scanLines(path, func(lineNum int, line string) error {
		name, values, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) != "P0" {
			return nil
		}
		p, err := parseFloats(values)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNum)
		}
		intrinsics, err = transform.NewPinholeCameraIntrinsicsFromProjection(p, width, height)
		return errors.Wrapf(err, "%s:%d", path, lineNum)
	})
	if err != nil {
		return nil, err
	}
	if intrinsics == nil {
		return nil, transform.NewNoIntrinsicsError("no P0 line in " + path)
	}
	return intrinsics, nil
}

// readPoses reads the camera positions of a KITTI poses file, one 3x4 row major [R|t] matrix
// per line.
func readPoses(path string) ([]r3.Vector, error) {
	var poses []r3.Vector
	err := scanLines(path, func(lineNum int, line string) error {
		p, err := parseFloats(line)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNum)
		}
		if len(p) != 12 {
			return errors.Errorf("%s:%d: expected 12 values, got %d", path, lineNum, len(p))
		}
		poses = append(poses, r3.Vector{X: p[3], Y: p[7], Z: p[11]})
		return nil
	})
	return poses, err
}

func scanLines(path string, f func(lineNum int, line string) error) error {
	//nolint:gosec
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "cannot open %q", path)
	}
	defer utils.UncheckedErrorFunc(file.Close)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := f(lineNum, line); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "cannot read %q", path)
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, field := range fields {
		v, err := cast.ToFloat64E(field)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var (
	_ ReferenceSource = (*kittiSource)(nil)
	_ Source          = (*imagesSource)(nil)
)
