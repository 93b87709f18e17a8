package calibrate

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/logging"
	"github.com/seal3d/sealcalib/transform"
	"github.com/seal3d/sealcalib/validate"
)

// MinCorrespondenceSets is the fewest valid views a calibration call accepts.
const MinCorrespondenceSets = 4

// Stage names used in errors and logs.
const (
	StageSingle    = "single camera"
	StageLeft      = "left camera"
	StageRight     = "right camera"
	StageStereo    = "stereo"
	StageRectify   = "rectification"
	StageReconcile = "reconciliation"
	StageCollect   = "collection"
)

// StereoCorrespondences are the views of a stereo capture: one object point set per view and the
// matching detections in each camera.
type StereoCorrespondences struct {
	Object [][]r3.Vector
	Left   [][]r2.Point
	Right  [][]r2.Point
	Size   image.Point
}

// Result is the reconciled outcome of a full stereo calibration.
type Result struct {
	// Left and Right keep the single-camera intrinsics with the stereo-refined distortion.
	Left   *calib.CameraParameters
	Right  *calib.CameraParameters
	Stereo *calib.StereoParameters
}

// A Calibrator sequences engine calls for a stereo rig.
type Calibrator struct {
	engine   Engine
	logger   logging.Logger
	criteria TermCriteria
}

// NewCalibrator returns a Calibrator driving engine.
func NewCalibrator(engine Engine, logger logging.Logger) *Calibrator {
	return &Calibrator{
		engine:   engine,
		logger:   logger,
		criteria: DefaultTermCriteria(),
	}
}

// CalibrateSingleCamera calibrates one camera with no fixed flags, which yields the five
// coefficient distortion model. Sets whose object and image lists are empty or differ in length
// are dropped with a warning.
func (c *Calibrator) CalibrateSingleCamera(obj [][]r3.Vector, img [][]r2.Point, size image.Point) (*calib.CameraParameters, error) {
	return c.calibrateSingle(StageSingle, obj, img, size)
}

func (c *Calibrator) calibrateSingle(
	stage string,
	obj [][]r3.Vector,
	img [][]r2.Point,
	size image.Point,
) (*calib.CameraParameters, error) {
	keep := make([]int, 0, len(obj))
	for i := 0; i < max(len(obj), len(img)); i++ {
		if i >= len(obj) || i >= len(img) {
			c.logger.Warnw("dropping unpaired correspondence set", "stage", stage, "index", i)
			continue
		}
		if len(obj[i]) == 0 || len(obj[i]) != len(img[i]) {
			c.logger.Warnw("dropping invalid correspondence set",
				"stage", stage, "index", i, "objectPoints", len(obj[i]), "imagePoints", len(img[i]))
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) < MinCorrespondenceSets {
		return nil, &InsufficientDataError{Stage: stage, Have: len(keep), Need: MinCorrespondenceSets}
	}
	validObj, validImg := selectSets(keep, obj), selectSets(keep, img)

	c.logger.Debugw("calibrating camera", "stage", stage, "sets", len(keep), "size", size)
	res, err := c.engine.CalibrateSingle(validObj, validImg, size, 0, c.criteria)
	if err != nil {
		return nil, newCalibrationError(stage, err)
	}
	if math.IsNaN(res.RMS) || math.IsInf(res.RMS, 0) || res.RMS < 0 {
		return nil, &CalibrationError{Stage: stage, Diagnostic: fmt.Sprintf("engine did not converge: rms error is %v", res.RMS)}
	}
	if len(res.Dist) != transform.BrownConradyCoefficients {
		return nil, &CalibrationError{
			Stage: stage,
			Diagnostic: fmt.Sprintf("expected %d distortion coefficients, engine returned %d",
				transform.BrownConradyCoefficients, len(res.Dist)),
		}
	}
	if res.K == nil {
		return nil, &CalibrationError{Stage: stage, Diagnostic: "engine returned no intrinsic matrix"}
	}
	if len(res.Poses) != 0 && len(res.Poses) != len(keep) {
		return nil, &CalibrationError{
			Stage:      stage,
			Diagnostic: fmt.Sprintf("engine returned %d poses for %d correspondence sets", len(res.Poses), len(keep)),
		}
	}
	cam, err := calib.NewCameraParameters(res.K, res.Dist, size, res.RMS, res.Poses)
	if err != nil {
		return nil, newCalibrationError(stage, err)
	}
	c.logger.Infow("camera calibrated", "stage", stage, "rms", res.RMS, "fx", cam.Fx(), "fy", cam.Fy())
	return cam, nil
}

// CalibrateStereoPair refines a camera pair with the intrinsics held fixed and the rational
// distortion model enabled.
//
// The engine receives the right camera in its first (A) position and the left camera in the
// second (B), and results are mapped back accordingly. Device files are produced with this
// ordering; swapping it cross-assigns the physical cameras.
func (c *Calibrator) CalibrateStereoPair(
	obj [][]r3.Vector,
	imgLeft, imgRight [][]r2.Point,
	left, right *calib.CameraParameters,
	size image.Point,
) (*calib.StereoParameters, error) {
	if left == nil || right == nil {
		return nil, errors.New("stereo calibration requires both single-camera results")
	}
	if len(imgLeft) != len(imgRight) {
		return nil, &MismatchedPairError{Left: len(imgLeft), Right: len(imgRight), Detail: "image point set counts differ"}
	}
	if len(obj) != len(imgLeft) {
		return nil, &MismatchedPairError{
			Left: len(imgLeft), Right: len(imgRight),
			Detail: fmt.Sprintf("%d object point sets", len(obj)),
		}
	}
	keep := make([]int, 0, len(obj))
	for i := range obj {
		if len(obj[i]) == 0 || len(obj[i]) != len(imgLeft[i]) || len(obj[i]) != len(imgRight[i]) {
			c.logger.Warnw("dropping invalid stereo correspondence set", "index", i,
				"objectPoints", len(obj[i]), "leftPoints", len(imgLeft[i]), "rightPoints", len(imgRight[i]))
			continue
		}
		keep = append(keep, i)
	}
	if len(keep) < MinCorrespondenceSets {
		return nil, &InsufficientDataError{Stage: StageStereo, Have: len(keep), Need: MinCorrespondenceSets}
	}

	flags := FixIntrinsic | RationalModel
	c.logger.Debugw("calibrating stereo pair", "sets", len(keep), "flags", flags.String())
	res, err := c.engine.CalibrateStereo(
		selectSets(keep, obj),
		selectSets(keep, imgRight),
		selectSets(keep, imgLeft),
		right.K(), right.Distortion(),
		left.K(), left.Distortion(),
		size,
		flags,
		c.criteria,
	)
	if err != nil {
		return nil, newCalibrationError(StageStereo, err)
	}
	if len(res.DistA) != transform.RationalCoefficients || len(res.DistB) != transform.RationalCoefficients {
		return nil, &CalibrationError{
			Stage: StageStereo,
			Diagnostic: fmt.Sprintf("expected %d distortion coefficients per camera, engine returned %d and %d",
				transform.RationalCoefficients, len(res.DistB), len(res.DistA)),
		}
	}
	if res.KA == nil || res.KB == nil || res.R == nil || res.E == nil || res.F == nil {
		return nil, &CalibrationError{Stage: StageStereo, Diagnostic: "engine returned an incomplete result"}
	}
	if rank, err := validate.FundamentalRank(res.F); err != nil {
		return nil, newCalibrationError(StageStereo, err)
	} else if rank != validate.ExpectedFundamentalRank {
		return nil, &CalibrationError{
			Stage:      StageStereo,
			Diagnostic: fmt.Sprintf("degenerate fundamental matrix: rank %d, expected %d", rank, validate.ExpectedFundamentalRank),
		}
	}

	stereo, err := calib.NewStereoParameters(calib.StereoValues{
		LeftK:     res.KB,
		LeftDist:  res.DistB,
		RightK:    res.KA,
		RightDist: res.DistA,
		R:         res.R,
		T:         res.T,
		E:         res.E,
		F:         res.F,
		RMS:       res.RMS,
		Size:      size,
	})
	if err != nil {
		return nil, newCalibrationError(StageStereo, err)
	}
	c.logger.Infow("stereo pair calibrated", "rms", res.RMS, "baseline", stereo.Baseline())
	return stereo, nil
}

// Reconcile keeps the single-camera intrinsic matrix (size, rms and poses too) and adopts the
// stereo step's eight coefficient distortion. The single-camera distortion is discarded.
func Reconcile(single *calib.CameraParameters, stereoDist []float64) (*calib.CameraParameters, error) {
	if single == nil {
		return nil, errors.New("no single-camera result to reconcile")
	}
	if len(stereoDist) != transform.RationalCoefficients {
		return nil, errors.Errorf("stereo distortion must have %d coefficients, got %d",
			transform.RationalCoefficients, len(stereoDist))
	}
	return single.WithDistortion(stereoDist)
}

// Calibrate runs the left, right and stereo steps and reconciles the results.
func (c *Calibrator) Calibrate(corr StereoCorrespondences) (*Result, error) {
	if len(corr.Left) != len(corr.Right) {
		return nil, &MismatchedPairError{Left: len(corr.Left), Right: len(corr.Right), Detail: "image point set counts differ"}
	}
	left, err := c.calibrateSingle(StageLeft, corr.Object, corr.Left, corr.Size)
	if err != nil {
		return nil, err
	}
	right, err := c.calibrateSingle(StageRight, corr.Object, corr.Right, corr.Size)
	if err != nil {
		return nil, err
	}
	stereo, err := c.CalibrateStereoPair(corr.Object, corr.Left, corr.Right, left, right, corr.Size)
	if err != nil {
		return nil, err
	}

	reconciledLeft, err := Reconcile(left, stereo.LeftDistortion())
	if err != nil {
		return nil, newCalibrationError(StageReconcile, err)
	}
	reconciledRight, err := Reconcile(right, stereo.RightDistortion())
	if err != nil {
		return nil, newCalibrationError(StageReconcile, err)
	}
	return &Result{Left: reconciledLeft, Right: reconciledRight, Stereo: stereo}, nil
}

// Rectify computes rectifying transforms for a calibrated pair. alpha is 0 to keep only valid
// pixels and 1 to keep the whole field of view.
func (c *Calibrator) Rectify(stereo *calib.StereoParameters, alpha float64) (Rectification, error) {
	if stereo == nil {
		return Rectification{}, errors.New("stereo parameters are required")
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return Rectification{}, errors.Errorf("alpha must lie in [0, 1], got %v", alpha)
	}
	rect, err := c.engine.Rectify(
		stereo.LeftK(), stereo.LeftDistortion(),
		stereo.RightK(), stereo.RightDistortion(),
		stereo.Size(),
		stereo.R(), stereo.T(),
		alpha,
	)
	if err != nil {
		return Rectification{}, newCalibrationError(StageRectify, err)
	}
	for _, m := range []struct {
		name       string
		rows, cols int
		val        *mat.Dense
	}{
		{"R1", 3, 3, rect.R1}, {"R2", 3, 3, rect.R2}, {"P1", 3, 4, rect.P1}, {"P2", 3, 4, rect.P2},
	} {
		if m.val == nil {
			return Rectification{}, &CalibrationError{Stage: StageRectify, Diagnostic: "engine returned no " + m.name}
		}
		if r, cols := m.val.Dims(); r != m.rows || cols != m.cols {
			return Rectification{}, &CalibrationError{
				Stage:      StageRectify,
				Diagnostic: fmt.Sprintf("%s must be %dx%d, got %dx%d", m.name, m.rows, m.cols, r, cols),
			}
		}
	}
	return rect, nil
}

func selectSets[T any](keep []int, sets [][]T) [][]T {
	out := make([][]T, len(keep))
	for i, idx := range keep {
		out[i] = sets[idx]
	}
	return out
}
