package validate

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/transform"
)

// Band is a qualitative rating of an RMS reprojection error.
type Band string

// Quality bands.
const (
	Excellent        Band = "excellent"
	Good             Band = "good"
	NeedsImprovement Band = "needs improvement"
)

// Quality rates an RMS error in pixels: below 0.5 is excellent, below 1.0 good.
func Quality(rms float64) Band {
	switch {
	case rms < 0.5:
		return Excellent
	case rms < 1.0:
		return Good
	default:
		return NeedsImprovement
	}
}

// ReportInput is everything NewReport summarizes. Only Stereo is required; per-image errors and
// the single-camera results are reported when present.
type ReportInput struct {
	Stereo      *calib.StereoParameters
	Left, Right *calib.CameraParameters
	LeftErrors  []float64
	RightErrors []float64
	// Resolution is the device resolution the calibration is written for.
	Resolution image.Point
	// OutlierThreshold defaults to DefaultOutlierThreshold when zero.
	OutlierThreshold float64
}

// CameraReport summarizes one camera.
type CameraReport struct {
	// RMS is the single-camera error; NaN when unknown.
	RMS       float64
	Quality   Band
	MeanError float64
	MaxError  float64
	Outliers  []int
}

// Report summarizes a stereo calibration.
type Report struct {
	Left, Right CameraReport

	StereoRMS     float64
	StereoQuality Band

	FundamentalRank  int
	FundamentalValid bool
	// FundamentalConsistency is the normalized distance between F and the F implied by K, R and T;
	// NaN for a placeholder stereo block.
	FundamentalConsistency float64

	Baseline    float64
	Translation r3.Vector
	Euler       transform.EulerAngles
	// RotationDegrees is the Rodrigues vector of R in degrees.
	RotationDegrees r3.Vector

	ImageSize          image.Point
	Resolution         image.Point
	ResolutionMismatch bool
}

// NewReport builds a Report.
func NewReport(in ReportInput) (*Report, error) {
	if in.Stereo == nil {
		return nil, errors.New("stereo parameters are required")
	}
	threshold := in.OutlierThreshold
	if threshold == 0 {
		threshold = DefaultOutlierThreshold
	}

	left, err := cameraReport(in.Left, in.LeftErrors, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "left camera")
	}
	right, err := cameraReport(in.Right, in.RightErrors, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "right camera")
	}

	stereo := in.Stereo
	rank, err := FundamentalRank(stereo.F())
	if err != nil {
		return nil, err
	}
	consistency := math.NaN()
	if !stereo.IsPlaceholder() {
		if consistency, err = FundamentalConsistency(stereo); err != nil {
			return nil, err
		}
	}
	rvec, err := transform.MatrixToRodrigues(stereo.R())
	if err != nil {
		return nil, err
	}

	return &Report{
		Left:                   left,
		Right:                  right,
		StereoRMS:              stereo.RMS(),
		StereoQuality:          Quality(stereo.RMS()),
		FundamentalRank:        rank,
		FundamentalValid:       rank == ExpectedFundamentalRank,
		FundamentalConsistency: consistency,
		Baseline:               stereo.Baseline(),
		Translation:            stereo.T(),
		Euler:                  transform.RotationMatrixToEuler(stereo.R()),
		RotationDegrees:        rvec.Mul(180 / math.Pi),
		ImageSize:              stereo.Size(),
		Resolution:             in.Resolution,
		ResolutionMismatch:     in.Resolution != (image.Point{}) && stereo.Size() != in.Resolution,
	}, nil
}

func cameraReport(camera *calib.CameraParameters, perImage []float64, threshold float64) (CameraReport, error) {
	out := CameraReport{RMS: math.NaN()}
	if camera != nil {
		out.RMS = camera.RMS()
		out.Quality = Quality(camera.RMS())
	}
	var err error
	if out.MeanError, err = meanOf(perImage); err != nil {
		return CameraReport{}, err
	}
	if out.MaxError, err = maxOf(perImage); err != nil {
		return CameraReport{}, err
	}
	out.Outliers = Outliers(perImage, threshold)
	return out, nil
}
