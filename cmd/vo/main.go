// Package main runs monocular visual odometry over a dataset and scores the estimated
// trajectory against the reference one.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/vo/config"
	"go.viam.com/vo/dataset"
	"go.viam.com/vo/display"
	"go.viam.com/vo/display/cvwindow"
	"go.viam.com/vo/logging"
	"go.viam.com/vo/pipeline"
	"go.viam.com/vo/vision/keypoints"
	"go.viam.com/vo/vision/odometry"
	"go.viam.com/vo/vision/trajectory"
)

var logger = golog.NewDevelopmentLogger("vo")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Config   string `flag:"config,default=params/kitti_fast_brief.yaml,usage=run config file"`
	Logging  string `flag:"logging,default=INFO,usage=logging level"`
	LogFile  string `flag:"log-file,usage=also write logs to this file"`
	Headless bool   `flag:"headless,usage=do not open any window"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	level, err := logging.ParseLevel(argsParsed.Logging)
	if err != nil {
		return err
	}
	if argsParsed.LogFile != "" {
		var closeLog func() error
		logger, closeLog, err = logging.NewLoggerWithFile("vo", level, argsParsed.LogFile)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, closeLog())
		}()
	} else if logger, err = logging.NewLogger("vo", level); err != nil {
		return err
	}

	cfg, err := config.Read(argsParsed.Config)
	if err != nil {
		return err
	}
	var surface display.Surface
	if argsParsed.Headless {
		surface = display.NewHeadless(logger)
	} else {
		surface = cvwindow.New(logger)
	}
	defer func() {
		err = multierr.Combine(err, surface.Close())
	}()
	return runOdometry(ctx, cfg, surface, logger)
}

// runOdometry builds every component out of cfg and runs the pipeline.
func runOdometry(ctx context.Context, cfg *config.Config, surface display.Surface, logger golog.Logger) (err error) {
	var dsCfg dataset.Config
	if err := config.Decode(cfg.Dataset, &dsCfg); err != nil {
		return err
	}
	var detCfg keypoints.DetectorConfig
	if err := config.Decode(cfg.Detector, &detCfg); err != nil {
		return err
	}
	var matchCfg keypoints.MatchingConfig
	if err := config.Decode(cfg.Matcher, &matchCfg); err != nil {
		return err
	}
	estCfg := odometry.DefaultEstimatorConfig()
	if err := config.Decode(cfg.Estimator, &estCfg); err != nil {
		return err
	}
	pipeCfg := pipeline.Config{
		Run:         pipeline.DefaultRunConfig(),
		Output:      pipeline.DefaultOutputConfig(),
		Trajectory:  trajectory.DefaultConfig(),
		DatasetRoot: dsCfg.RootPath,
	}
	if err := config.Decode(cfg.Trajectory, &pipeCfg.Trajectory); err != nil {
		return err
	}
	if err := config.Decode(cfg.Run, &pipeCfg.Run); err != nil {
		return err
	}
	if err := config.Decode(cfg.Output, &pipeCfg.Output); err != nil {
		return err
	}
	if pipeCfg.Output.Name == "" {
		pipeCfg.Output.Name = cfg.Name
	}

	src, err := dataset.New(&dsCfg, logger.Named("dataset"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, src.Close())
	}()
	detector, err := keypoints.NewDetector(&detCfg, logger.Named("detector"))
	if err != nil {
		return err
	}
	matcher, err := keypoints.NewMatcher(&matchCfg, logger.Named("matcher"))
	if err != nil {
		return err
	}
	var reference odometry.ReferenceTrajectory
	if refSrc, ok := src.(dataset.ReferenceSource); ok {
		reference = refSrc
	}
	estimator, err := odometry.NewVisualOdometry(estCfg, src.Cam(), detector, matcher, reference, logger.Named("odometry"))
	if err != nil {
		return err
	}

	orchestrator, err := pipeline.New(pipeCfg, pipeline.Collaborators{
		Source:    src,
		Estimator: estimator,
		Surface:   surface,
	}, logger.Named("pipeline"))
	if err != nil {
		return err
	}
	res, err := orchestrator.Run(ctx)
	if err != nil {
		return err
	}
	logger.Infow("run finished", "config", cfg.Path, "frames", res.Frames, "pairs", len(res.Pairs),
		"mean_error", res.MeanError, "cancelled", res.Cancelled)
	return nil
}
