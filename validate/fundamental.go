package validate

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/transform"
)

// ExpectedFundamentalRank is the rank of every valid fundamental matrix.
const ExpectedFundamentalRank = 2

// FundamentalRank counts the singular values of f above transform.RankTolerance times the
// largest.
func FundamentalRank(f mat.Matrix) (int, error) {
	if f == nil {
		return 0, errors.New("fundamental matrix is required")
	}
	if r, c := f.Dims(); r != 3 || c != 3 {
		return 0, errors.Errorf("fundamental matrix must be 3x3, got %dx%d", r, c)
	}
	return transform.Rank(f, transform.RankTolerance)
}

// CheckFundamental returns an error unless f has rank 2.
func CheckFundamental(f mat.Matrix) error {
	rank, err := FundamentalRank(f)
	if err != nil {
		return err
	}
	if rank != ExpectedFundamentalRank {
		return errors.Errorf("fundamental matrix has rank %d, expected %d", rank, ExpectedFundamentalRank)
	}
	return nil
}

// FundamentalConsistency compares the stored F with the one implied by the intrinsics and
// extrinsics. Both are normalized, so 0 means identical up to scale.
func FundamentalConsistency(stereo *calib.StereoParameters) (float64, error) {
	if stereo == nil {
		return 0, errors.New("stereo parameters are required")
	}
	// R and T take right camera points to the left camera.
	implied, err := transform.FundamentalFromExtrinsics(stereo.RightK(), stereo.LeftK(), stereo.R(), stereo.T())
	if err != nil {
		return 0, err
	}
	return transform.NormalizedDistance(stereo.F(), implied), nil
}

// RectificationCheck compares the baseline recovered from the rectified projection matrices with
// the calibrated one.
type RectificationCheck struct {
	RectifiedBaseline float64
	Baseline          float64
	Difference        float64
}

// CheckRectification reads the rectified baseline as |P2[0,3] - P1[0,3]| / P1[0,0].
func CheckRectification(stereo *calib.StereoParameters, p1, p2 mat.Matrix) (RectificationCheck, error) {
	if stereo == nil {
		return RectificationCheck{}, errors.New("stereo parameters are required")
	}
	for i, p := range []mat.Matrix{p1, p2} {
		if p == nil {
			return RectificationCheck{}, errors.Errorf("P%d is required", i+1)
		}
		if r, c := p.Dims(); r != 3 || c != 4 {
			return RectificationCheck{}, errors.Errorf("P%d must be 3x4, got %dx%d", i+1, r, c)
		}
	}
	if p1.At(0, 0) == 0 {
		return RectificationCheck{}, errors.New("P1 has zero focal length")
	}
	rectified := math.Abs(p2.At(0, 3)-p1.At(0, 3)) / p1.At(0, 0)
	baseline := stereo.Baseline()
	return RectificationCheck{
		RectifiedBaseline: rectified,
		Baseline:          baseline,
		Difference:        math.Abs(rectified - baseline),
	}, nil
}
