// Package pipeline drives the frame by frame odometry loop: frames are pulled from a source,
// fed to the estimator, drawn with their matches, scored against the reference trajectory and
// persisted.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/vo/dataset"
	"go.viam.com/vo/display"
	"go.viam.com/vo/rimage"
	"go.viam.com/vo/utils"
	"go.viam.com/vo/vision/correspondence"
	"go.viam.com/vo/vision/keypoints"
	"go.viam.com/vo/vision/odometry"
	"go.viam.com/vo/vision/trajectory"
)

// Window names.
const (
	FrameWindow      = "frame"
	TrajectoryWindow = "trajectory"
)

// Collaborators are the components the Orchestrator composes.
type Collaborators struct {
	Source    dataset.Source
	Estimator odometry.Estimator
	Surface   display.Surface
}

// Result describes a finished run.
type Result struct {
	// Frames is the number of frames handed to the estimator.
	Frames int
	// Cancelled is set when the operator stopped the run early.
	Cancelled bool
	Pairs     []correspondence.Record
	Errors    []float64
	MeanError float64
}

// An Orchestrator runs the loop once.
type Orchestrator struct {
	cfg       Config
	deps      Collaborators
	evaluator *trajectory.Evaluator
	logger    golog.Logger

	pairs  []correspondence.Record
	frames []image.Image
	last   *odometry.Step
}

// New returns an Orchestrator ready to Run.
func New(cfg Config, deps Collaborators, logger golog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Estimator == nil || deps.Surface == nil {
		return nil, errors.New("pipeline needs a source, an estimator and a display surface")
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		evaluator: trajectory.NewEvaluator(cfg.Trajectory, logger),
		logger:    logger,
	}, nil
}

// Evaluator returns the trajectory evaluator fed by the loop.
func (o *Orchestrator) Evaluator() *trajectory.Evaluator {
	return o.evaluator
}

// Run processes every frame of the source, then writes the outputs of the run mode. An escape
// key press or a cancelled context stops the loop without error.
func (o *Orchestrator) Run(ctx context.Context) (res *Result, err error) {
	if err := utils.EnsureDir(o.cfg.Output.ResultsDir); err != nil {
		return nil, err
	}
	poseLog, err := o.openPoseLog()
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, errors.Wrap(poseLog.Close(), "cannot close pose log"))
	}()

	res = &Result{}
	for i := 0; ; i++ {
		frame, err := o.deps.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			return nil, errors.Wrapf(err, "cannot read frame %d", i)
		}

		step, err := o.deps.Estimator.Update(ctx, frame, o.cfg.Run.WindowSize)
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			return nil, err
		}
		res.Frames++
		o.last = step
		if step.Record != nil {
			o.pairs = append(o.pairs, *step.Record)
		}
		if o.cfg.Run.Mode == CaptureReplay {
			if len(o.frames) > 0 && !rimage.SameImgSize(o.frames[0], frame) {
				return nil, errors.Errorf("frame %d is %v but the sequence started with %v",
					i, frame.Bounds().Size(), o.frames[0].Bounds().Size())
			}
			o.frames = append(o.frames, frame)
		}
		if o.cfg.Output.PoseLog {
			if err := writePose(poseLog, i, step.Pose); err != nil {
				return nil, err
			}
		}

		stop, err := o.visualize(ctx, i, frame, step)
		if err != nil {
			return nil, err
		}
		if stop {
			o.logger.Infow("run stopped by operator", "frame", i)
			res.Cancelled = true
			break
		}
	}

	switch o.cfg.Run.Mode {
	case CaptureReplay:
		stop, err := o.finishCaptureReplay(ctx)
		if err != nil {
			return nil, err
		}
		res.Cancelled = res.Cancelled || stop
	case Interactive:
		if err := o.finishInteractive(); err != nil {
			return nil, err
		}
	}
	if err := o.report(); err != nil {
		return nil, err
	}

	res.Pairs = o.pairs
	res.Errors = o.evaluator.Errors()
	res.MeanError = o.evaluator.MeanError()
	return res, nil
}

// visualize draws frame i with its matches, updates the trajectory and waits for the operator.
// It returns true when the operator asked to stop.
func (o *Orchestrator) visualize(ctx context.Context, i int, frame image.Image, step *odometry.Step) (bool, error) {
	var annotated *image.RGBA
	var err error
	switch {
	case step.Record != nil:
		annotated, err = keypoints.PlotMatches(frame, *step.Record)
	case o.cfg.Run.FirstFrame == DegenerateFirstFrame:
		annotated, err = keypoints.PlotMatches(frame, correspondence.Record{})
	}
	if err != nil {
		return false, errors.Wrapf(err, "cannot draw frame %d", i)
	}
	if annotated != nil {
		if err := o.deps.Surface.Show(FrameWindow, annotated); err != nil {
			return false, err
		}
	}

	// a pose delta needs two frames, the trajectory starts with the second one
	if i > 0 {
		position := step.Pose.TranslationVector().Mul(-1)
		reference := position
		if o.cfg.Trajectory.UseReference {
			if src, ok := o.deps.Source.(dataset.ReferenceSource); ok {
				if ref, ok := src.Reference(i); ok {
					reference = ref
				}
			}
		}
		canvas, err := o.evaluator.Update(position, reference)
		if err != nil {
			return false, err
		}
		if err := o.deps.Surface.Show(TrajectoryWindow, canvas); err != nil {
			return false, err
		}
	}
	return o.waitForEscape(ctx, o.waitDuration())
}

func (o *Orchestrator) waitDuration() time.Duration {
	return time.Duration(o.cfg.Run.WaitMS) * time.Millisecond
}

func (o *Orchestrator) waitForEscape(ctx context.Context, d time.Duration) (bool, error) {
	key, err := o.deps.Surface.WaitKey(ctx, d)
	if err != nil {
		return false, err
	}
	return key == display.KeyEscape, nil
}

// resultPath returns <results>/<name><suffix>.
func (o *Orchestrator) resultPath(suffix string) (string, error) {
	return utils.SafeJoinDir(o.cfg.Output.ResultsDir, o.cfg.Output.Name+suffix)
}

func (o *Orchestrator) saveCanvas() (string, error) {
	path, err := o.resultPath(".png")
	if err != nil {
		return "", err
	}
	return path, rimage.WriteImageToFile(path, o.evaluator.Canvas())
}

// finishInteractive saves the canvas and the keypoints of the last frame.
func (o *Orchestrator) finishInteractive() error {
	canvasPath, err := o.saveCanvas()
	if err != nil {
		return err
	}
	if o.last == nil || o.last.Current == nil {
		o.logger.Warn("no frame processed, no keypoint dump written")
		return nil
	}
	dumpPath, err := o.resultPath("_keypoints_matches.npy")
	if err != nil {
		return err
	}
	if err := correspondence.SaveKeypointDump(dumpPath, o.last.Current.Points, o.last.Matches, o.last.Current.Scores); err != nil {
		return err
	}
	o.logger.Infow("results saved", "canvas", canvasPath, "keypoints", dumpPath)
	return nil
}

// finishCaptureReplay persists every record then replays them pair by pair. Each frame of a
// pair stays on screen until a key is pressed.
func (o *Orchestrator) finishCaptureReplay(ctx context.Context) (bool, error) {
	pairsPath, err := utils.SafeJoinDir(o.cfg.DatasetRoot, o.cfg.Output.PairsFile)
	if err != nil {
		return false, err
	}
	if err := correspondence.SaveFile(pairsPath, o.pairs); err != nil {
		return false, err
	}
	o.logger.Infow("correspondences saved", "file", pairsPath, "records", len(o.pairs))

	stop, err := o.replay(ctx)
	if err != nil {
		return false, err
	}
	if _, err := o.saveCanvas(); err != nil {
		return false, err
	}
	return stop, nil
}

func (o *Orchestrator) replay(ctx context.Context) (bool, error) {
	for k, rec := range o.pairs {
		if k+1 >= len(o.frames) {
			break
		}
		prev, err := keypoints.PlotKeypoints(o.frames[k], rec.Match0, rec.Score)
		if err != nil {
			return false, errors.Wrapf(err, "cannot draw pair %d", k)
		}
		if err := o.deps.Surface.Show(FrameWindow, prev); err != nil {
			return false, err
		}
		if stop, err := o.waitForEscape(ctx, 0); err != nil || stop {
			return stop, err
		}

		cur, err := keypoints.PlotMatches(o.frames[k+1], rec)
		if err != nil {
			return false, errors.Wrapf(err, "cannot draw pair %d", k)
		}
		if err := o.deps.Surface.Show(FrameWindow, cur); err != nil {
			return false, err
		}
		if stop, err := o.waitForEscape(ctx, 0); err != nil || stop {
			return stop, err
		}

		if stop, err := o.waitForEscape(ctx, o.waitDuration()); err != nil || stop {
			return stop, err
		}
	}
	return false, nil
}

// report saves the error chart and logs the error summary.
func (o *Orchestrator) report() error {
	summary, err := o.evaluator.Summary()
	if errors.Is(err, trajectory.ErrNoSamples) {
		o.logger.Info("no trajectory point, nothing to report")
		return nil
	}
	if err != nil {
		return err
	}
	plotPath, err := o.resultPath("_errors.png")
	if err != nil {
		return err
	}
	if err := o.evaluator.SaveErrorPlot(plotPath); err != nil {
		return err
	}
	o.logger.Infof("trajectory error of %s\n%s", o.cfg.Output.Name, summary)
	return nil
}

// openPoseLog opens <results>/<name>.txt, appending to it in interactive runs.
func (o *Orchestrator) openPoseLog() (*os.File, error) {
	path, err := o.resultPath(".txt")
	if err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY
	if o.cfg.Run.Mode == Interactive {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	//nolint:gosec
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open pose log %q", path)
	}
	return f, nil
}

// writePose writes "i tx ty tz rx ry rz", the rotation being in axis-angle form.
func writePose(w io.Writer, i int, pose *odometry.Motion3D) error {
	t, r := pose.TranslationVector(), pose.RotationVector()
	_, err := fmt.Fprintf(w, "%d %.6f %.6f %.6f %.6f %.6f %.6f\n", i, t.X, t.Y, t.Z, r.X, r.Y, r.Z)
	return errors.Wrap(err, "cannot write pose")
}
