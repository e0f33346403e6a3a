package dataset

import (
	"path/filepath"

	"github.com/edaniels/golog"
)

// imagesSource reads the frames of any directory; there is no reference trajectory.
type imagesSource struct {
	*fileSource
}

func newImagesSource(cfg *Config, logger golog.Logger) (*imagesSource, error) {
	files, err := listFrames(filepath.Join(cfg.RootPath, cfg.ImageDir), cfg.Glob, cfg.Start, cfg.Length)
	if err != nil {
		return nil, err
	}
	logger.Infow("images dataset opened", "frames", len(files), "root_path", cfg.RootPath)
	return &imagesSource{&fileSource{
		files:      files,
		intrinsics: cfg.Intrinsics,
		logger:     logger,
	}}, nil
}
