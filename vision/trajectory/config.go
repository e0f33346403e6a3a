package trajectory

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Config controls how positions are mapped onto the canvas and which reference is used.
type Config struct {
	OffsetX int     `json:"offset_x"`
	OffsetY int     `json:"offset_y"`
	Scale   float64 `json:"scale"`
	// UseReference scores against the dataset's reference trajectory when it has one;
	// otherwise the estimate is its own reference and the error stays at zero.
	UseReference bool `json:"use_reference"`
}

// DefaultConfig returns the fixed mapping of a 600x600 canvas: one pixel per meter with the
// origin at (290, 90).
func DefaultConfig() Config {
	return Config{OffsetX: DefaultOffsetX, OffsetY: DefaultOffsetY, Scale: 1}
}

func (cfg Config) withDefaults() Config {
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	return cfg
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Scale < 0 {
		return goutils.NewConfigValidationError(path, errors.New("scale must be positive"))
	}
	if cfg.OffsetX < 0 || cfg.OffsetX >= CanvasSize || cfg.OffsetY < 0 || cfg.OffsetY >= CanvasSize {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("offset (%d, %d) is outside of the %dx%d canvas", cfg.OffsetX, cfg.OffsetY, CanvasSize, CanvasSize))
	}
	return nil
}
