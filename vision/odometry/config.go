package odometry

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/vo/rimage/transform"
)

// EstimatorConfig contains the parameters needed for motion estimation between two video frames.
type EstimatorConfig struct {
	// MinMatches is the number of correspondences under which the pose is not updated.
	MinMatches int `json:"min_matches"`
	// DefaultScale is the translation scale used when there is no reference trajectory.
	DefaultScale float64 `json:"default_scale"`
	// MinScale is the scale under which the motion is considered noise and dropped.
	MinScale float64                 `json:"min_scale"`
	RANSAC   *transform.RANSACConfig `json:"ransac"`
}

// DefaultEstimatorConfig returns the configuration used for absent fields.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		MinMatches:   transform.MinPointsFundamental,
		DefaultScale: 1,
		MinScale:     0.1,
		RANSAC: &transform.RANSACConfig{
			Iterations: 200,
			Threshold:  1,
		},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *EstimatorConfig) Validate(path string) error {
	if cfg.MinMatches < transform.MinPointsFundamental {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min_matches should be >= %d", transform.MinPointsFundamental))
	}
	if cfg.DefaultScale <= 0 {
		return utils.NewConfigValidationError(path, errors.New("default_scale should be > 0"))
	}
	if cfg.MinScale < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_scale should be >= 0"))
	}
	if cfg.RANSAC == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "ransac")
	}
	return cfg.RANSAC.Validate(path + ".ransac")
}
