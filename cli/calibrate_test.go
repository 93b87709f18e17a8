package cli

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/archive"
	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/logging"
	"github.com/seal3d/sealcalib/transform"
)

var fakeBaseline = r3.Vector{X: -60}

// fakeEngine returns a fixed rig with a 60 mm horizontal baseline.
type fakeEngine struct {
	rectifiedBaseline float64
	alpha             float64
	singleCalls       int
}

func fakeK() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1000, 0, 32, 0, 1000, 24, 0, 0, 1})
}

func (e *fakeEngine) CalibrateSingle(
	obj [][]r3.Vector, img [][]r2.Point, size image.Point, flags calibrate.Flag, criteria calibrate.TermCriteria,
) (calibrate.SingleResult, error) {
	e.singleCalls++
	return calibrate.SingleResult{RMS: 0.21, K: fakeK(), Dist: []float64{0.1, -0.05, 0, 0, 0.01}}, nil
}

func (e *fakeEngine) CalibrateStereo(
	obj [][]r3.Vector,
	imgA, imgB [][]r2.Point,
	kA mat.Matrix, distA []float64,
	kB mat.Matrix, distB []float64,
	size image.Point,
	flags calibrate.Flag,
	criteria calibrate.TermCriteria,
) (calibrate.StereoResult, error) {
	rot := transform.Identity(3)
	f, err := transform.FundamentalFromExtrinsics(kA, kB, rot, fakeBaseline)
	if err != nil {
		return calibrate.StereoResult{}, err
	}
	pad := func(d []float64) []float64 {
		out := make([]float64, transform.RationalCoefficients)
		copy(out, d)
		return out
	}
	return calibrate.StereoResult{
		RMS:   0.3,
		KA:    mat.DenseCopyOf(kA),
		DistA: pad(distA),
		KB:    mat.DenseCopyOf(kB),
		DistB: pad(distB),
		R:     rot,
		T:     fakeBaseline,
		E:     transform.EssentialFromExtrinsics(rot, fakeBaseline),
		F:     f,
	}, nil
}

func (e *fakeEngine) Rectify(
	kLeft mat.Matrix, distLeft []float64,
	kRight mat.Matrix, distRight []float64,
	size image.Point,
	r mat.Matrix, t r3.Vector,
	alpha float64,
) (calibrate.Rectification, error) {
	e.alpha = alpha
	return calibrate.Rectification{
		R1: transform.Identity(3),
		R2: transform.Identity(3),
		P1: mat.NewDense(3, 4, []float64{1000, 0, 32, 0, 0, 1000, 24, 0, 0, 0, 1, 0}),
		P2: mat.NewDense(3, 4, []float64{1000, 0, 32, -1000 * e.rectifiedBaseline, 0, 1000, 24, 0, 0, 0, 1, 0}),
	}, nil
}

// gridDetector reports a 9x6 grid of corners in bright images.
var gridDetector = calibrate.DetectorFunc(func(img *image.Gray) (bool, []r2.Point, error) {
	if img.GrayAt(0, 0).Y < 128 {
		return false, nil, nil
	}
	var pts []r2.Point
	for i := 0; i < 6; i++ {
		for j := 0; j < 9; j++ {
			pts = append(pts, r2.Point{X: float64(5 + 5*j), Y: float64(5 + 5*i)})
		}
	}
	return true, pts, nil
})

func writeCaptures(t *testing.T, dir string, bright []bool) {
	t.Helper()
	for i, b := range bright {
		c := color.Color(color.White)
		if !b {
			c = color.Black
		}
		stem := filepath.Join(dir, string(rune('a'+i)))
		test.That(t, imaging.Save(imaging.New(64, 48, c), stem+"_left.png"), test.ShouldBeNil)
		test.That(t, imaging.Save(imaging.New(64, 48, color.White), stem+"_right.png"), test.ShouldBeNil)
	}
}

func (env *testEnv) runWithEngine(engine calibrate.Engine, args ...string) error {
	env.out.Reset()
	env.errOut.Reset()
	app := newApp(&env.out, &env.errOut, env.clock, func(r *runner) {
		r.newEngine = func(logging.Logger) calibrate.Engine { return engine }
		r.newDetector = func(calibrate.Pattern) (calibrate.Detector, error) { return gridDetector, nil }
	})
	return app.Run(append([]string{"sealcalib"}, args...))
}

func TestCalibrateCommand(t *testing.T) {
	env := setup(t)
	captures := t.TempDir()
	writeCaptures(t, captures, []bool{true, true, false, true, true, true})
	output := filepath.Join(env.dir, "run.zip")

	engine := &fakeEngine{rectifiedBaseline: 60}
	err := env.runWithEngine(engine, "calibrate", "--output", output, "--alpha", "0.5", captures)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, engine.singleCalls, test.ShouldEqual, 2)
	test.That(t, engine.alpha, test.ShouldEqual, 0.5)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "5 of 6 pairs usable at 64x48")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "0.3000 px (excellent)")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "60.000 mm")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "wrote "+output)
	test.That(t, env.errOut.String(), test.ShouldNotContainSubstring, "Warning:")

	a, err := archive.Load(output)
	test.That(t, err, test.ShouldBeNil)
	stereo, err := archive.ToStereo(a)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stereo.Baseline(), test.ShouldEqual, 60.0)
	test.That(t, stereo.Size(), test.ShouldResemble, image.Point{X: 64, Y: 48})
	test.That(t, len(stereo.LeftDistortion()), test.ShouldEqual, transform.RationalCoefficients)
	p2, err := a.Get(archive.KeyP2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p2.At(0, 3), test.ShouldEqual, -60000.0)

	test.That(t, env.run("report", output), test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "0.3000 px (excellent)")
}

func TestCalibrateCommandWarnsOnRectifiedBaseline(t *testing.T) {
	env := setup(t)
	captures := t.TempDir()
	writeCaptures(t, captures, []bool{true, true, true, true})
	output := filepath.Join(env.dir, "run.zip")

	err := env.runWithEngine(&fakeEngine{rectifiedBaseline: 50}, "calibrate", "--output", output, captures)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, env.errOut.String(), test.ShouldContainSubstring, "rectified baseline 50.000 mm differs")
}

func TestCalibrateCommandErrors(t *testing.T) {
	env := setup(t)
	captures := t.TempDir()
	writeCaptures(t, captures, []bool{true, true, false, true})
	output := filepath.Join(env.dir, "run.zip")

	err := env.runWithEngine(&fakeEngine{rectifiedBaseline: 60}, "calibrate", captures)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, flagOutput)

	err = env.runWithEngine(&fakeEngine{rectifiedBaseline: 60}, "calibrate", "--output", output, captures)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "insufficient data")
	_, err = archive.Load(output)
	test.That(t, err, test.ShouldNotBeNil)

	err = env.runWithEngine(&fakeEngine{rectifiedBaseline: 60}, "calibrate", "--output", output)
	test.That(t, err, test.ShouldNotBeNil)
}
