package keypoints

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// FASTBRIEF is the detector type computing FAST corners described with BRIEF.
const FASTBRIEF = "fast_brief"

// A Detector finds keypoints in a grayscale frame and describes them.
type Detector interface {
	Detect(ctx context.Context, img *image.Gray) (*Detection, error)
}

// DetectorConfig contains the parameters / configs needed to detect and describe keypoints.
type DetectorConfig struct {
	Type      string       `json:"type"`
	FASTConf  *FASTConfig  `json:"fast"`
	BRIEFConf *BRIEFConfig `json:"brief"`
}

// Validate ensures all parts of the DetectorConfig are valid.
func (config *DetectorConfig) Validate(path string) error {
	if config.Type != "" && config.Type != FASTBRIEF {
		return utils.NewConfigValidationError(path, errors.Errorf("unsupported detector type %q", config.Type))
	}
	if config.FASTConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	if err := config.FASTConf.Validate(path + ".fast"); err != nil {
		return err
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

type fastBRIEFDetector struct {
	cfg    *DetectorConfig
	pairs  *SamplePairs
	logger golog.Logger
}

// NewDetector returns the detector described by cfg. The BRIEF sample pairs are drawn once
// so every frame is described with the same pattern.
func NewDetector(cfg *DetectorConfig, logger golog.Logger) (Detector, error) {
	if err := cfg.Validate("detector"); err != nil {
		return nil, err
	}
	brief := cfg.BRIEFConf
	return &fastBRIEFDetector{
		cfg:    cfg,
		pairs:  GenerateSamplePairs(brief.Sampling, brief.N, brief.PatchSize, brief.Seed),
		logger: logger,
	}, nil
}

// Detect computes FAST keypoints far enough from the border for their BRIEF patch to fit.
func (d *fastBRIEFDetector) Detect(ctx context.Context, img *image.Gray) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pts, scores := computeFAST(img, d.cfg.FASTConf, d.cfg.BRIEFConf.PatchSize/2+1)
	descs, err := ComputeBRIEFDescriptors(img, d.pairs, pts, d.cfg.BRIEFConf)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("detected keypoints", "count", len(pts))
	return &Detection{
		Points:      convertImagePointSliceToFloatPointSlice(pts),
		Scores:      scores,
		Descriptors: descs,
	}, nil
}
