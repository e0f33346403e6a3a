package pipeline

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	voutils "go.viam.com/vo/utils"
	"go.viam.com/vo/vision/trajectory"
)

// RunMode selects what happens around the per-frame loop.
type RunMode string

// Run modes.
const (
	// Interactive shows every frame as it is processed and saves the final canvas and the
	// keypoint dump of the last frame.
	Interactive RunMode = "interactive"
	// CaptureReplay also buffers every frame, then persists all correspondence records and
	// replays them one pair at a time.
	CaptureReplay RunMode = "capture_replay"
)

// FirstFramePolicy decides what is drawn for the first frame, which has no correspondences.
type FirstFramePolicy string

// First frame policies.
const (
	SkipFirstFrame       FirstFramePolicy = "skip"
	DegenerateFirstFrame FirstFramePolicy = "degenerate"
)

// Defaults of the run and output sections.
const (
	DefaultWindowSize = 5
	DefaultWaitMS     = 10
	DefaultResultsDir = "results"
	DefaultPairsFile  = "correspondences.npy"
)

// RunConfig controls the loop.
type RunConfig struct {
	Mode RunMode `json:"mode"`
	// WindowSize is handed to the estimator with every frame.
	WindowSize int              `json:"window_size"`
	FirstFrame FirstFramePolicy `json:"first_frame"`
	// WaitMS is how long to wait for a key press after each frame.
	WaitMS int `json:"wait_ms"`
}

// DefaultRunConfig returns an interactive run config.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Mode:       Interactive,
		WindowSize: DefaultWindowSize,
		FirstFrame: SkipFirstFrame,
		WaitMS:     DefaultWaitMS,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *RunConfig) Validate(path string) error {
	switch cfg.Mode {
	case Interactive, CaptureReplay:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", cfg.Mode))
	}
	switch cfg.FirstFrame {
	case SkipFirstFrame, DegenerateFirstFrame:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown first_frame policy %q", cfg.FirstFrame))
	}
	if cfg.WindowSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("window_size should be >= 1"))
	}
	if cfg.WaitMS < 1 {
		return utils.NewConfigValidationError(path, errors.New("wait_ms should be >= 1"))
	}
	return nil
}

// OutputConfig says where the artifacts of a run go.
type OutputConfig struct {
	ResultsDir string `json:"results_dir"`
	// Name prefixes every file of the results directory; it defaults to the config base name.
	Name string `json:"name"`
	// PairsFile is the correspondence stream written by CaptureReplay runs, relative to the
	// dataset root.
	PairsFile string `json:"pairs_file"`
	PoseLog   bool   `json:"pose_log"`
}

// DefaultOutputConfig returns the default output config, without a name.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{ResultsDir: DefaultResultsDir, PairsFile: DefaultPairsFile}
}

// Validate ensures all parts of the config are valid.
func (cfg *OutputConfig) Validate(path string) error {
	if cfg.ResultsDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "results_dir")
	}
	if cfg.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if cfg.PairsFile == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pairs_file")
	}
	if _, err := voutils.SafeJoinDir(cfg.ResultsDir, cfg.Name+".png"); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "name must stay inside results_dir"))
	}
	return nil
}

// Config gathers everything the Orchestrator needs besides its collaborators.
type Config struct {
	Run        RunConfig
	Output     OutputConfig
	Trajectory trajectory.Config
	// DatasetRoot is where CaptureReplay runs write their correspondence stream.
	DatasetRoot string
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Run.Validate("run"); err != nil {
		return err
	}
	if err := cfg.Output.Validate("output"); err != nil {
		return err
	}
	if err := cfg.Trajectory.Validate("trajectory"); err != nil {
		return err
	}
	if cfg.Run.Mode == CaptureReplay {
		if cfg.DatasetRoot == "" {
			return utils.NewConfigValidationFieldRequiredError("dataset", "root_path")
		}
		if _, err := voutils.SafeJoinDir(cfg.DatasetRoot, cfg.Output.PairsFile); err != nil {
			return utils.NewConfigValidationError("output", errors.Wrap(err, "pairs_file must stay inside the dataset root"))
		}
	}
	return nil
}
