// Package dataset provides the ordered frame sources fed to the odometry pipeline.
package dataset

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/vo/rimage"
	"go.viam.com/vo/rimage/transform"
)

// Dataset types.
const (
	TypeKITTI  = "kitti"
	TypeImages = "images"
)

// A Source yields the frames of a sequence in order. Next returns io.EOF once every frame has
// been returned.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Cam() *transform.PinholeCameraIntrinsics
	Close() error
}

// A ReferenceSource also knows the reference camera position of its frames.
type ReferenceSource interface {
	Source
	Reference(i int) (r3.Vector, bool)
}

// Config describes where the frames of a sequence live.
type Config struct {
	Type     string `json:"type"`
	RootPath string `json:"root_path"`
	// Sequence is the KITTI sequence name, e.g. "00".
	Sequence string `json:"sequence"`
	// ImageDir and Glob select the frames of an images dataset; ImageDir is relative to RootPath.
	ImageDir string `json:"image_dir"`
	Glob     string `json:"glob"`
	// Start skips the first frames; Length limits the number of frames, 0 meaning all of them.
	Start      int                                `json:"start"`
	Length     int                                `json:"length"`
	Intrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	// PosesFile overrides the reference poses file, relative to RootPath.
	PosesFile string `json:"poses_file"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.RootPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "root_path")
	}
	switch cfg.Type {
	case "", TypeKITTI:
		if cfg.Sequence == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "sequence")
		}
	case TypeImages:
		if cfg.Intrinsics == nil {
			return utils.NewConfigValidationFieldRequiredError(path, "intrinsic_parameters")
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown dataset type %q", cfg.Type))
	}
	if cfg.Start < 0 || cfg.Length < 0 {
		return utils.NewConfigValidationError(path, errors.New("start and length should be >= 0"))
	}
	if cfg.Intrinsics != nil {
		if err := cfg.Intrinsics.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

// New opens the source described by cfg.
func New(cfg *Config, logger golog.Logger) (Source, error) {
	if err := cfg.Validate("dataset"); err != nil {
		return nil, err
	}
	if cfg.Type == TypeImages {
		return newImagesSource(cfg, logger)
	}
	return newKITTISource(cfg, logger)
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".gif", ".ppm"}

// listFrames returns the image files of dir matching glob, sorted by name, trimmed to the
// [start, start+length) window.
func listFrames(dir, glob string, start, length int) ([]string, error) {
	if glob == "" {
		glob = "*"
	}
	files, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, errors.Wrapf(err, "bad glob %q", glob)
	}
	files = lo.Filter(files, func(f string, _ int) bool {
		return lo.Contains(imageExtensions, strings.ToLower(filepath.Ext(f)))
	})
	if len(files) == 0 {
		return nil, errors.Errorf("no image found in %q", dir)
	}
	sort.Strings(files)
	if start >= len(files) {
		return nil, errors.Errorf("start frame %d is past the %d frames of %q", start, len(files), dir)
	}
	files = files[start:]
	if length > 0 && length < len(files) {
		files = files[:length]
	}
	return files, nil
}

// fileSource decodes the listed frames lazily, one per Next call.
type fileSource struct {
	files      []string
	next       int
	intrinsics *transform.PinholeCameraIntrinsics
	logger     golog.Logger
}

func (fs *fileSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fs.next >= len(fs.files) {
		return nil, io.EOF
	}
	img, err := rimage.ReadImageFromFile(fs.files[fs.next])
	if err != nil {
		return nil, err
	}
	fs.logger.Debugw("frame read", "index", fs.next, "file", fs.files[fs.next])
	fs.next++
	return img, nil
}

func (fs *fileSource) Cam() *transform.PinholeCameraIntrinsics {
	return fs.intrinsics
}

func (fs *fileSource) Close() error {
	fs.next = len(fs.files)
	return nil
}

// Len returns the number of frames of the source.
func (fs *fileSource) Len() int {
	return len(fs.files)
}
