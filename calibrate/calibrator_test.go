package calibrate

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/logging"
	"github.com/seal3d/sealcalib/transform"
)

var testSize = image.Point{X: 1280, Y: 720}

// fakeEngine derives fx from the first detected point of the first view so tests can tell the
// cameras apart, and records what the stereo call received.
type fakeEngine struct {
	singleDist []float64
	singleErr  error
	stereoF    *mat.Dense
	stereoDist int
	stereoErr  error
	rect       Rectification

	singleFlags []Flag
	stereoImgA  [][]r2.Point
	stereoImgB  [][]r2.Point
	stereoKA    *mat.Dense
	stereoKB    *mat.Dense
	stereoFlags Flag
	criteria    TermCriteria
	rectAlpha   float64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		singleDist: []float64{0.1, -0.2, 0.001, 0.002, 0.05},
		stereoDist: 8,
		stereoF:    rankTwoF(),
		rect: Rectification{
			R1: transform.Identity(3),
			R2: transform.Identity(3),
			P1: mat.NewDense(3, 4, []float64{1000, 0, 640, 0, 0, 1000, 360, 0, 0, 0, 1, 0}),
			P2: mat.NewDense(3, 4, []float64{1000, 0, 640, -60000, 0, 1000, 360, 0, 0, 0, 1, 0}),
		},
	}
}

func rankTwoF() *mat.Dense {
	f, err := transform.FundamentalFromExtrinsics(camMatrix(1200), camMatrix(1100), transform.Identity(3), r3.Vector{X: -60})
	if err != nil {
		panic(err)
	}
	return f
}

func camMatrix(fx float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{fx, 0, 640, 0, fx, 360, 0, 0, 1})
}

func (e *fakeEngine) CalibrateSingle(
	obj [][]r3.Vector,
	img [][]r2.Point,
	size image.Point,
	flags Flag,
	criteria TermCriteria,
) (SingleResult, error) {
	e.singleFlags = append(e.singleFlags, flags)
	e.criteria = criteria
	if e.singleErr != nil {
		return SingleResult{}, e.singleErr
	}
	poses := make([]calib.Pose, len(obj))
	for i := range poses {
		poses[i] = calib.Pose{Translation: r3.Vector{Z: 500 + float64(i)}}
	}
	return SingleResult{
		RMS:   0.25,
		K:     camMatrix(1000 + img[0][0].X),
		Dist:  append([]float64(nil), e.singleDist...),
		Poses: poses,
	}, nil
}

func (e *fakeEngine) CalibrateStereo(
	obj [][]r3.Vector,
	imgA, imgB [][]r2.Point,
	kA mat.Matrix, distA []float64,
	kB mat.Matrix, distB []float64,
	size image.Point,
	flags Flag,
	criteria TermCriteria,
) (StereoResult, error) {
	e.stereoImgA, e.stereoImgB = imgA, imgB
	e.stereoKA, e.stereoKB = mat.DenseCopyOf(kA), mat.DenseCopyOf(kB)
	e.stereoFlags = flags
	if e.stereoErr != nil {
		return StereoResult{}, e.stereoErr
	}
	distOut := func(first float64) []float64 {
		d := make([]float64, e.stereoDist)
		if len(d) > 0 {
			d[0] = first
		}
		return d
	}
	tvec := r3.Vector{X: -60}
	return StereoResult{
		RMS:   0.4,
		KA:    mat.DenseCopyOf(kA),
		DistA: distOut(0.2),
		KB:    mat.DenseCopyOf(kB),
		DistB: distOut(0.1),
		R:     transform.Identity(3),
		T:     tvec,
		E:     transform.EssentialFromExtrinsics(transform.Identity(3), tvec),
		F:     e.stereoF,
	}, nil
}

func (e *fakeEngine) Rectify(
	kLeft mat.Matrix, distLeft []float64,
	kRight mat.Matrix, distRight []float64,
	size image.Point,
	r mat.Matrix, t r3.Vector,
	alpha float64,
) (Rectification, error) {
	e.rectAlpha = alpha
	return e.rect, nil
}

// views builds n views of a 2x2 target; left detections start at x=100 and right at x=200.
func views(n int) StereoCorrespondences {
	corr := StereoCorrespondences{Size: testSize}
	for i := 0; i < n; i++ {
		corr.Object = append(corr.Object, Chessboard{Rows: 2, Cols: 2, SquareSize: 25}.ObjectPoints())
		corr.Left = append(corr.Left, []r2.Point{{X: 100, Y: 1}, {X: 110, Y: 1}, {X: 100, Y: 11}, {X: 110, Y: 11}})
		corr.Right = append(corr.Right, []r2.Point{{X: 200, Y: 1}, {X: 210, Y: 1}, {X: 200, Y: 11}, {X: 210, Y: 11}})
	}
	return corr
}

func TestCalibrateSingleCamera(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("three sets are not enough", func(t *testing.T) {
		c := NewCalibrator(newFakeEngine(), logger)
		corr := views(3)
		_, err := c.CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		var insufficient *InsufficientDataError
		test.That(t, errors.As(err, &insufficient), test.ShouldBeTrue)
		test.That(t, insufficient.Have, test.ShouldEqual, 3)
		test.That(t, insufficient.Need, test.ShouldEqual, 4)
		test.That(t, err.Error(), test.ShouldContainSubstring, "3 valid correspondence sets")
	})

	t.Run("four sets succeed", func(t *testing.T) {
		engine := newFakeEngine()
		c := NewCalibrator(engine, logger)
		corr := views(4)
		cam, err := c.CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cam.Fx(), test.ShouldEqual, 1100.0)
		test.That(t, len(cam.Distortion()), test.ShouldEqual, 5)
		test.That(t, len(cam.Poses()), test.ShouldEqual, 4)
		test.That(t, cam.Size(), test.ShouldResemble, testSize)
		test.That(t, engine.singleFlags, test.ShouldResemble, []Flag{0})
		test.That(t, engine.criteria, test.ShouldResemble, TermCriteria{MaxIter: 30, Epsilon: 0.001})
	})

	t.Run("invalid sets are dropped with a warning", func(t *testing.T) {
		observedLogger, logs := logging.NewObservedTestLogger(t)
		c := NewCalibrator(newFakeEngine(), observedLogger)
		corr := views(5)
		corr.Left[2] = corr.Left[2][:3]
		cam, err := c.CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(cam.Poses()), test.ShouldEqual, 4)
		test.That(t, logs.FilterMessage("dropping invalid correspondence set").Len(), test.ShouldEqual, 1)

		corr.Left[3] = nil
		_, err = c.CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		var insufficient *InsufficientDataError
		test.That(t, errors.As(err, &insufficient), test.ShouldBeTrue)
	})

	t.Run("engine failures", func(t *testing.T) {
		engine := newFakeEngine()
		engine.singleErr = errors.New("did not converge")
		c := NewCalibrator(engine, logger)
		corr := views(4)
		_, err := c.CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
		test.That(t, calErr.Diagnostic, test.ShouldEqual, "did not converge")
		test.That(t, errors.Cause(calErr.Unwrap()), test.ShouldEqual, engine.singleErr)

		engine = newFakeEngine()
		engine.singleDist = make([]float64, 8)
		_, err = NewCalibrator(engine, logger).CalibrateSingleCamera(corr.Object, corr.Left, corr.Size)
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "expected 5 distortion coefficients")
	})
}

func TestCalibrateStereoPair(t *testing.T) {
	logger := logging.NewTestLogger(t)
	corr := views(4)
	left, err := calib.NewCameraParameters(camMatrix(1100), make([]float64, 5), testSize, 0.2, nil)
	test.That(t, err, test.ShouldBeNil)
	right, err := calib.NewCameraParameters(camMatrix(1200), make([]float64, 5), testSize, 0.3, nil)
	test.That(t, err, test.ShouldBeNil)

	t.Run("right camera goes first", func(t *testing.T) {
		engine := newFakeEngine()
		stereo, err := NewCalibrator(engine, logger).CalibrateStereoPair(corr.Object, corr.Left, corr.Right, left, right, testSize)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, engine.stereoImgA[0][0].X, test.ShouldEqual, 200.0)
		test.That(t, engine.stereoImgB[0][0].X, test.ShouldEqual, 100.0)
		test.That(t, engine.stereoKA.At(0, 0), test.ShouldEqual, 1200.0)
		test.That(t, engine.stereoKB.At(0, 0), test.ShouldEqual, 1100.0)
		test.That(t, engine.stereoFlags, test.ShouldEqual, FixIntrinsic|RationalModel)

		test.That(t, stereo.LeftK().At(0, 0), test.ShouldEqual, 1100.0)
		test.That(t, stereo.RightK().At(0, 0), test.ShouldEqual, 1200.0)
		test.That(t, stereo.LeftDistortion()[0], test.ShouldEqual, 0.1)
		test.That(t, stereo.RightDistortion()[0], test.ShouldEqual, 0.2)
		test.That(t, stereo.Baseline(), test.ShouldAlmostEqual, 60.0)
	})

	t.Run("mismatched counts", func(t *testing.T) {
		_, err := NewCalibrator(newFakeEngine(), logger).CalibrateStereoPair(
			corr.Object, corr.Left, corr.Right[:3], left, right, testSize)
		var mismatch *MismatchedPairError
		test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
		test.That(t, mismatch.Left, test.ShouldEqual, 4)
		test.That(t, mismatch.Right, test.ShouldEqual, 3)
	})

	t.Run("too few valid sets", func(t *testing.T) {
		bad := views(4)
		bad.Right[0] = bad.Right[0][:1]
		_, err := NewCalibrator(newFakeEngine(), logger).CalibrateStereoPair(
			bad.Object, bad.Left, bad.Right, left, right, testSize)
		var insufficient *InsufficientDataError
		test.That(t, errors.As(err, &insufficient), test.ShouldBeTrue)
		test.That(t, insufficient.Stage, test.ShouldEqual, StageStereo)
	})

	t.Run("degenerate fundamental matrix", func(t *testing.T) {
		engine := newFakeEngine()
		engine.stereoF = transform.Identity(3)
		_, err := NewCalibrator(engine, logger).CalibrateStereoPair(corr.Object, corr.Left, corr.Right, left, right, testSize)
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
		test.That(t, calErr.Diagnostic, test.ShouldContainSubstring, "rank 3")
	})

	t.Run("wrong distortion length", func(t *testing.T) {
		engine := newFakeEngine()
		engine.stereoDist = 5
		_, err := NewCalibrator(engine, logger).CalibrateStereoPair(corr.Object, corr.Left, corr.Right, left, right, testSize)
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
	})
}

func TestCalibrate(t *testing.T) {
	c := NewCalibrator(newFakeEngine(), logging.NewTestLogger(t))
	res, err := c.Calibrate(views(4))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, res.Left.Fx(), test.ShouldEqual, 1100.0)
	test.That(t, res.Right.Fx(), test.ShouldEqual, 1200.0)
	test.That(t, len(res.Left.Distortion()), test.ShouldEqual, 8)
	test.That(t, len(res.Right.Distortion()), test.ShouldEqual, 8)
	test.That(t, res.Left.K1(), test.ShouldEqual, 0.1)
	test.That(t, res.Right.K1(), test.ShouldEqual, 0.2)
	test.That(t, res.Left.RMS(), test.ShouldEqual, 0.25)
	test.That(t, len(res.Left.Poses()), test.ShouldEqual, 4)
	test.That(t, res.Stereo.RMS(), test.ShouldEqual, 0.4)

	_, err = c.Calibrate(views(3))
	var insufficient *InsufficientDataError
	test.That(t, errors.As(err, &insufficient), test.ShouldBeTrue)
	test.That(t, insufficient.Stage, test.ShouldEqual, StageLeft)
}

func TestReconcile(t *testing.T) {
	single, err := calib.NewCameraParameters(camMatrix(1100.5), []float64{1, 2, 3, 4, 5}, testSize, 0.3, nil)
	test.That(t, err, test.ShouldBeNil)

	out, err := Reconcile(single, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.K(), test.ShouldResemble, single.K())
	test.That(t, out.K6(), test.ShouldEqual, 0.8)

	_, err = Reconcile(single, []float64{1, 2, 3, 4, 5})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Reconcile(nil, make([]float64, 8))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRectify(t *testing.T) {
	engine := newFakeEngine()
	c := NewCalibrator(engine, logging.NewTestLogger(t))
	res, err := c.Calibrate(views(4))
	test.That(t, err, test.ShouldBeNil)

	rect, err := c.Rectify(res.Stereo, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, engine.rectAlpha, test.ShouldEqual, 0.5)
	test.That(t, rect.P2.At(0, 3), test.ShouldEqual, -60000.0)

	for _, alpha := range []float64{-0.1, 1.1} {
		_, err = c.Rectify(res.Stereo, alpha)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "alpha")
	}

	engine.rect.P1 = transform.Identity(3)
	_, err = c.Rectify(res.Stereo, 0)
	var calErr *CalibrationError
	test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
	test.That(t, calErr.Diagnostic, test.ShouldContainSubstring, "P1 must be 3x4")
}

func TestFlagString(t *testing.T) {
	test.That(t, Flag(0).String(), test.ShouldEqual, "none")
	test.That(t, (FixIntrinsic | RationalModel).String(), test.ShouldEqual, "fix_intrinsic|rational_model")
	test.That(t, (FixIntrinsic | RationalModel).Has(UseIntrinsicGuess), test.ShouldBeFalse)
}
