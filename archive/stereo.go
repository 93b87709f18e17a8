package archive

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/calibrate"
)

// Keys of a stereo calibration archive.
const (
	KeyLeftK     = "K_left"
	KeyLeftDist  = "dist_left"
	KeyRightK    = "K_right"
	KeyRightDist = "dist_right"
	KeyR         = "R"
	KeyT         = "T"
	KeyE         = "E"
	KeyF         = "F"
	KeyImageSize = "img_size"
	KeyRMS       = "rms_error"

	KeyLeftRMS  = "rms_left"
	KeyRightRMS = "rms_right"
	KeyR1       = "R1"
	KeyR2       = "R2"
	KeyP1       = "P1"
	KeyP2       = "P2"
)

// FromStereo stores a stereo calibration. T is a 3x1 column and img_size is (width, height).
func FromStereo(s *calib.StereoParameters) *Archive {
	a := New()
	a.Set(KeyLeftK, s.LeftK())
	a.SetVector(KeyLeftDist, s.LeftDistortion())
	a.Set(KeyRightK, s.RightK())
	a.SetVector(KeyRightDist, s.RightDistortion())
	a.Set(KeyR, s.R())
	t := s.T()
	a.Set(KeyT, mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z}))
	a.Set(KeyE, s.E())
	a.Set(KeyF, s.F())
	size := s.Size()
	a.SetVector(KeyImageSize, []float64{float64(size.X), float64(size.Y)})
	a.SetScalar(KeyRMS, s.RMS())
	return a
}

// FromResult stores a full calibration run: the stereo block, the single camera rms errors and,
// when rect is not nil, the rectifying rotations and projections. ToStereo reads it back.
func FromResult(res *calibrate.Result, rect *calibrate.Rectification) (*Archive, error) {
	if res == nil || res.Stereo == nil || res.Left == nil || res.Right == nil {
		return nil, errors.New("calibration result is incomplete")
	}
	a := FromStereo(res.Stereo)
	a.SetScalar(KeyLeftRMS, res.Left.RMS())
	a.SetScalar(KeyRightRMS, res.Right.RMS())
	if rect != nil {
		a.Set(KeyR1, rect.R1)
		a.Set(KeyR2, rect.R2)
		a.Set(KeyP1, rect.P1)
		a.Set(KeyP2, rect.P2)
	}
	return a, nil
}

// ToStereo rebuilds a stereo calibration saved by FromStereo.
func ToStereo(a *Archive) (*calib.StereoParameters, error) {
	var v calib.StereoValues
	var err error
	get := func(key string) *mat.Dense {
		if err != nil {
			return nil
		}
		var m *mat.Dense
		m, err = a.Get(key)
		return m
	}
	vec := func(key string) []float64 {
		if err != nil {
			return nil
		}
		var out []float64
		out, err = a.Vector(key)
		return out
	}

	leftK, rightK := get(KeyLeftK), get(KeyRightK)
	r, e, f := get(KeyR), get(KeyE), get(KeyF)
	v.LeftDist, v.RightDist = vec(KeyLeftDist), vec(KeyRightDist)
	t, size := vec(KeyT), vec(KeyImageSize)
	if err != nil {
		return nil, err
	}
	if len(t) != 3 {
		return nil, errors.Errorf("translation must have 3 values, got %d", len(t))
	}
	if len(size) != 2 {
		return nil, errors.Errorf("image size must have 2 values, got %d", len(size))
	}
	rms, err := a.Scalar(KeyRMS)
	if err != nil {
		return nil, err
	}

	v.LeftK, v.RightK, v.R, v.E, v.F = leftK, rightK, r, e, f
	v.T = r3.Vector{X: t[0], Y: t[1], Z: t[2]}
	v.Size = image.Point{X: int(size[0]), Y: int(size[1])}
	v.RMS = rms
	return calib.NewStereoParameters(v)
}
