package odometry

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/vo/rimage"
	"go.viam.com/vo/rimage/transform"
	"go.viam.com/vo/vision/correspondence"
	"go.viam.com/vo/vision/keypoints"
)

// ErrTooFewMatches is returned when there are not enough correspondences to estimate a motion.
var ErrTooFewMatches = errors.New("not enough matches to estimate motion")

// Step is the outcome of feeding one frame to an Estimator. It is never modified after being
// returned.
type Step struct {
	Index int
	// Pose is the accumulated rotation and translation after this frame.
	Pose *Motion3D
	// Delta is the unit translation motion estimated from the previous frame; identity when
	// the motion was not updated.
	Delta *Motion3D
	Scale float64
	// Tracked is set when Pose moved with this frame.
	Tracked bool
	// Record holds the correspondences with the previous frame, nil on the first frame.
	Record  *correspondence.Record
	Current *keypoints.Detection
	// Matches holds, for every keypoint of Current, the index of its match in the previous
	// frame or -1.
	Matches []float64
}

// An Estimator consumes frames in order and tracks the camera pose.
type Estimator interface {
	// Update ingests the next frame. windowSize is the number of recent scale samples
	// smoothed into the translation scale.
	Update(ctx context.Context, frame image.Image, windowSize int) (*Step, error)
}

// ReferenceTrajectory gives the reference camera position of a frame when it is known.
type ReferenceTrajectory interface {
	Reference(i int) (r3.Vector, bool)
}

// VisualOdometry is a monocular Estimator: keypoints are matched between consecutive frames,
// the relative pose comes from the essential matrix and the translation is scaled either from
// a reference trajectory or by a constant.
type VisualOdometry struct {
	cfg        EstimatorConfig
	intrinsics *transform.PinholeCameraIntrinsics
	detector   keypoints.Detector
	matcher    keypoints.Matcher
	reference  ReferenceTrajectory
	logger     golog.Logger

	index  int
	prev   *keypoints.Detection
	pose   *Motion3D
	scales []float64
}

// NewVisualOdometry returns a VisualOdometry starting at the identity pose. reference may be nil.
func NewVisualOdometry(
	cfg EstimatorConfig,
	intrinsics *transform.PinholeCameraIntrinsics,
	detector keypoints.Detector,
	matcher keypoints.Matcher,
	reference ReferenceTrajectory,
	logger golog.Logger,
) (*VisualOdometry, error) {
	if err := cfg.Validate("estimator"); err != nil {
		return nil, err
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if detector == nil || matcher == nil {
		return nil, errors.New("visual odometry needs a detector and a matcher")
	}
	return &VisualOdometry{
		cfg:        cfg,
		intrinsics: intrinsics,
		detector:   detector,
		matcher:    matcher,
		reference:  reference,
		logger:     logger,
		pose:       NewIdentityMotion3D(),
	}, nil
}

// Update implements Estimator.
func (vo *VisualOdometry) Update(ctx context.Context, frame image.Image, windowSize int) (*Step, error) {
	if windowSize < 1 {
		return nil, errors.Errorf("window size should be >= 1, got %d", windowSize)
	}
	if frame == nil {
		return nil, errors.New("frame is nil")
	}
	det, err := vo.detector.Detect(ctx, rimage.MakeGray(frame))
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", vo.index)
	}
	step := &Step{
		Index:   vo.index,
		Delta:   NewIdentityMotion3D(),
		Current: det,
	}
	defer func() {
		vo.prev = det
		vo.index++
	}()

	if vo.prev == nil {
		step.Pose = vo.pose.Clone()
		step.Matches = make([]float64, det.Len())
		for i := range step.Matches {
			step.Matches[i] = -1
		}
		return step, nil
	}

	rec, matches, err := vo.matcher.Match(ctx, vo.prev, det)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", vo.index)
	}
	step.Record = &rec
	step.Matches = matches
	step.Scale = vo.absoluteScale(windowSize)

	delta, err := vo.estimateDelta(rec)
	switch {
	case errors.Is(err, ErrTooFewMatches):
		vo.logger.Debugw("pose kept", "frame", vo.index, "reason", err.Error())
	case err != nil:
		return nil, errors.Wrapf(err, "frame %d", vo.index)
	case step.Scale <= vo.cfg.MinScale:
		vo.logger.Debugw("pose kept", "frame", vo.index, "reason", "scale too small", "scale", step.Scale)
	default:
		vo.pose = vo.pose.Compose(delta, step.Scale)
		step.Delta = delta
		step.Tracked = true
	}
	step.Pose = vo.pose.Clone()
	vo.logger.Debugw("frame processed", "frame", vo.index, "matches", rec.Len(), "tracked", step.Tracked,
		"translation", step.Pose.TranslationVector())
	return step, nil
}

func (vo *VisualOdometry) estimateDelta(rec correspondence.Record) (*Motion3D, error) {
	if rec.Len() < vo.cfg.MinMatches {
		return nil, errors.Wrapf(ErrTooFewMatches, "got %d, need %d", rec.Len(), vo.cfg.MinMatches)
	}
	pose, _, err := transform.EstimateNewPoseRANSAC(rec.Match0, rec.Match1, vo.intrinsics, vo.cfg.RANSAC)
	if errors.Is(err, transform.ErrTooFewPoints) {
		return nil, errors.Wrap(ErrTooFewMatches, err.Error())
	}
	if err != nil {
		return nil, err
	}
	return NewMotion3DFromRotationTranslation(pose.Rotation, pose.Translation), nil
}

// absoluteScale records the scale of the current frame and returns the median of the last
// windowSize samples.
func (vo *VisualOdometry) absoluteScale(windowSize int) float64 {
	raw := vo.cfg.DefaultScale
	if vo.reference != nil {
		cur, okCur := vo.reference.Reference(vo.index)
		prev, okPrev := vo.reference.Reference(vo.index - 1)
		if okCur && okPrev {
			raw = cur.Sub(prev).Norm()
		}
	}
	vo.scales = append(vo.scales, raw)
	if len(vo.scales) > windowSize {
		vo.scales = vo.scales[len(vo.scales)-windowSize:]
	}
	median, err := stats.Median(vo.scales)
	if err != nil {
		return raw
	}
	return median
}

// Pose returns a copy of the current accumulated pose.
func (vo *VisualOdometry) Pose() *Motion3D {
	return vo.pose.Clone()
}
