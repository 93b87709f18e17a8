package validate

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/transform"
)

var testSize = image.Point{X: 1280, Y: 720}

func testK(fx float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		fx, 0, 640,
		0, fx, 360,
		0, 0, 1,
	})
}

func board() []r3.Vector {
	var pts []r3.Vector
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			pts = append(pts, r3.Vector{X: float64(j) * 30, Y: float64(i) * 30})
		}
	}
	return pts
}

func testPoses() []calib.Pose {
	return []calib.Pose{
		{Rotation: r3.Vector{X: 0.1}, Translation: r3.Vector{X: -45, Y: -30, Z: 500}},
		{Rotation: r3.Vector{Y: -0.2}, Translation: r3.Vector{X: -20, Y: -10, Z: 650}},
		{Rotation: r3.Vector{Z: 0.3}, Translation: r3.Vector{X: 10, Y: -40, Z: 420}},
	}
}

func TestReprojectionError(t *testing.T) {
	dist := []float64{0.01, -0.02, 0.001, 0.0005, 0.003}
	cam, err := calib.NewCameraParameters(testK(1100), dist, testSize, 0.2, testPoses())
	test.That(t, err, test.ShouldBeNil)

	obj := [][]r3.Vector{board(), board(), board()}
	img := make([][]r2.Point, len(obj))
	for i, pose := range cam.Poses() {
		img[i], err = transform.ProjectPoints(obj[i], pose.Rotation, pose.Translation, cam.K(), dist)
		test.That(t, err, test.ShouldBeNil)
	}

	mean, perImage, err := ReprojectionError(obj, img, cam, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mean, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, len(perImage), test.ShouldEqual, 3)

	t.Run("shifted detections", func(t *testing.T) {
		shifted := make([][]r2.Point, len(img))
		copy(shifted, img)
		shifted[1] = make([]r2.Point, len(img[1]))
		for j, p := range img[1] {
			shifted[1][j] = p.Add(r2.Point{X: 2})
		}
		mean, perImage, err := ReprojectionError(obj, shifted, cam, nil)
		test.That(t, err, test.ShouldBeNil)
		// sqrt(n * 2^2) / n
		want := 2 / math.Sqrt(12)
		test.That(t, perImage[1], test.ShouldAlmostEqual, want, 1e-9)
		test.That(t, perImage[0], test.ShouldAlmostEqual, 0, 1e-9)
		test.That(t, mean, test.ShouldAlmostEqual, want/3, 1e-9)
	})

	t.Run("custom projector", func(t *testing.T) {
		calls := 0
		projector := func(obj []r3.Vector, rvec, tvec r3.Vector, k mat.Matrix, dist []float64) ([]r2.Point, error) {
			calls++
			return make([]r2.Point, len(obj)), nil
		}
		_, _, err := ReprojectionError(obj, img, cam, projector)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, calls, test.ShouldEqual, 3)
	})

	t.Run("pose count mismatch", func(t *testing.T) {
		_, _, err := ReprojectionError(obj[:2], img[:2], cam, nil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "3 poses for 2")
	})
}

func testStereo(t *testing.T) *calib.StereoParameters {
	t.Helper()
	tvec := r3.Vector{X: -60}
	f, err := transform.FundamentalFromExtrinsics(testK(1090), testK(1100), transform.Identity(3), tvec)
	test.That(t, err, test.ShouldBeNil)
	stereo, err := calib.NewStereoParameters(calib.StereoValues{
		LeftK:     testK(1100),
		LeftDist:  make([]float64, 8),
		RightK:    testK(1090),
		RightDist: make([]float64, 8),
		R:         transform.Identity(3),
		T:         tvec,
		E:         transform.EssentialFromExtrinsics(transform.Identity(3), tvec),
		F:         f,
		RMS:       0.42,
		Size:      testSize,
	})
	test.That(t, err, test.ShouldBeNil)
	return stereo
}

func TestStereoReprojectionErrors(t *testing.T) {
	stereo := testStereo(t)
	poses := testPoses()
	obj := [][]r3.Vector{board(), board(), board()}

	var imgLeft, imgRight [][]r2.Point
	for i, pose := range poses {
		left, err := transform.ProjectPoints(obj[i], pose.Rotation, pose.Translation, stereo.LeftK(), stereo.LeftDistortion())
		test.That(t, err, test.ShouldBeNil)
		// with R = I, right camera coordinates are left coordinates minus T
		right, err := transform.ProjectPoints(obj[i], pose.Rotation, pose.Translation.Sub(stereo.T()),
			stereo.RightK(), stereo.RightDistortion())
		test.That(t, err, test.ShouldBeNil)
		imgLeft = append(imgLeft, left)
		imgRight = append(imgRight, right)
	}

	errsLeft, errsRight, err := StereoReprojectionErrors(obj, imgLeft, imgRight, poses, stereo, nil)
	test.That(t, err, test.ShouldBeNil)
	for i := range obj {
		test.That(t, errsLeft[i], test.ShouldAlmostEqual, 0, 1e-6)
		test.That(t, errsRight[i], test.ShouldAlmostEqual, 0, 1e-6)
	}

	_, _, err = StereoReprojectionErrors(obj, imgLeft[:1], imgRight, poses, stereo, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCoverage(t *testing.T) {
	cov, err := Coverage(nil, testSize, DefaultGrid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cov, test.ShouldEqual, 0.0)

	sets := [][]r2.Point{
		{{X: 10, Y: 10}, {X: 20, Y: 20}},
		{{X: 1279, Y: 719}, {X: -5, Y: 100}, {X: 5000, Y: 5000}},
		{{X: 330, Y: 250}, {X: 650, Y: 10}},
	}
	last := 0.0
	for n := 1; n <= len(sets); n++ {
		cov, err := Coverage(sets[:n], testSize, DefaultGrid)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cov, test.ShouldBeGreaterThanOrEqualTo, last)
		test.That(t, cov, test.ShouldBeLessThanOrEqualTo, 1.0)
		last = cov
	}
	test.That(t, last, test.ShouldAlmostEqual, 4.0/12.0)

	var full []r2.Point
	for x := 0.0; x < 1280; x += 100 {
		for y := 0.0; y < 720; y += 100 {
			full = append(full, r2.Point{X: x, Y: y})
		}
	}
	cov, err = Coverage([][]r2.Point{full}, testSize, DefaultGrid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cov, test.ShouldEqual, 1.0)

	cov, err = Coverage([][]r2.Point{{{X: math.NaN(), Y: 10}, {X: 10, Y: math.Inf(1)}, {X: math.Inf(-1), Y: math.NaN()}}},
		testSize, DefaultGrid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cov, test.ShouldEqual, 0.0)

	_, err = Coverage(sets, testSize, Grid{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Coverage(sets, image.Point{}, DefaultGrid)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestQuality(t *testing.T) {
	test.That(t, Quality(0.1), test.ShouldEqual, Excellent)
	test.That(t, Quality(0.4999), test.ShouldEqual, Excellent)
	test.That(t, Quality(0.5), test.ShouldEqual, Good)
	test.That(t, Quality(0.99), test.ShouldEqual, Good)
	test.That(t, Quality(1.0), test.ShouldEqual, NeedsImprovement)
	test.That(t, Quality(3), test.ShouldEqual, NeedsImprovement)
}

func TestOutliers(t *testing.T) {
	test.That(t, Outliers([]float64{0.2, 1.5, 1.0, 3}, DefaultOutlierThreshold), test.ShouldResemble, []int{1, 3})
	test.That(t, Outliers(nil, DefaultOutlierThreshold), test.ShouldBeNil)
}

func TestFundamental(t *testing.T) {
	stereo := testStereo(t)
	rank, err := FundamentalRank(stereo.F())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rank, test.ShouldEqual, 2)
	test.That(t, CheckFundamental(stereo.F()), test.ShouldBeNil)

	err = CheckFundamental(transform.Identity(3))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "rank 3")

	rank, err = FundamentalRank(mat.NewDense(3, 3, nil))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rank, test.ShouldEqual, 0)

	_, err = FundamentalRank(mat.NewDense(2, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)

	consistency, err := FundamentalConsistency(stereo)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, consistency, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestCheckRectification(t *testing.T) {
	stereo := testStereo(t)
	p1 := mat.NewDense(3, 4, []float64{
		1000, 0, 640, 0,
		0, 1000, 360, 0,
		0, 0, 1, 0,
	})
	p2 := mat.DenseCopyOf(p1)
	p2.Set(0, 3, -59000)

	check, err := CheckRectification(stereo, p1, p2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, check.RectifiedBaseline, test.ShouldAlmostEqual, 59.0)
	test.That(t, check.Baseline, test.ShouldAlmostEqual, 60.0)
	test.That(t, check.Difference, test.ShouldAlmostEqual, 1.0)

	_, err = CheckRectification(stereo, p1, transform.Identity(3))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "P2 must be 3x4")
}

func TestNewReport(t *testing.T) {
	stereo := testStereo(t)
	left, err := calib.NewCameraParameters(testK(1100), make([]float64, 5), testSize, 0.3, nil)
	test.That(t, err, test.ShouldBeNil)

	report, err := NewReport(ReportInput{
		Stereo:      stereo,
		Left:        left,
		LeftErrors:  []float64{0.1, 0.3, 1.4},
		RightErrors: []float64{0.2},
		Resolution:  image.Point{X: 1280, Y: 720},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.StereoQuality, test.ShouldEqual, Excellent)
	test.That(t, report.Left.Quality, test.ShouldEqual, Excellent)
	test.That(t, report.Left.MeanError, test.ShouldAlmostEqual, 0.6)
	test.That(t, report.Left.MaxError, test.ShouldAlmostEqual, 1.4)
	test.That(t, report.Left.Outliers, test.ShouldResemble, []int{2})
	test.That(t, math.IsNaN(report.Right.RMS), test.ShouldBeTrue)
	test.That(t, report.Right.MaxError, test.ShouldAlmostEqual, 0.2)
	test.That(t, report.FundamentalValid, test.ShouldBeTrue)
	test.That(t, report.FundamentalConsistency, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, report.Baseline, test.ShouldAlmostEqual, 60.0)
	test.That(t, report.Euler, test.ShouldResemble, transform.EulerAngles{})
	test.That(t, report.ResolutionMismatch, test.ShouldBeFalse)

	t.Run("placeholder stereo and mismatched resolution", func(t *testing.T) {
		placeholder, err := calib.PlaceholderStereo(left, left, image.Point{X: 640, Y: 480})
		test.That(t, err, test.ShouldBeNil)
		report, err := NewReport(ReportInput{Stereo: placeholder, Resolution: testSize})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, report.FundamentalRank, test.ShouldEqual, 0)
		test.That(t, report.FundamentalValid, test.ShouldBeFalse)
		test.That(t, math.IsNaN(report.FundamentalConsistency), test.ShouldBeTrue)
		test.That(t, report.Baseline, test.ShouldEqual, 0.0)
		test.That(t, report.ResolutionMismatch, test.ShouldBeTrue)
		test.That(t, report.Left.Outliers, test.ShouldBeNil)
	})

	_, err = NewReport(ReportInput{})
	test.That(t, err, test.ShouldNotBeNil)
}
