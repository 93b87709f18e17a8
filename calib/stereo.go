package calib

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/transform"
)

// StereoValues is the plain form of a stereo calibration, used to build and inspect
// StereoParameters.
type StereoValues struct {
	LeftK     mat.Matrix
	LeftDist  []float64
	RightK    mat.Matrix
	RightDist []float64
	// R and T take points from the right camera frame to the left camera frame.
	R    mat.Matrix
	T    r3.Vector
	E    mat.Matrix
	F    mat.Matrix
	RMS  float64
	Size image.Point
}

// StereoParameters is the calibrated relationship between the two cameras.
type StereoParameters struct {
	leftK, rightK       *mat.Dense
	leftDist, rightDist []float64
	r                   *mat.Dense
	t                   r3.Vector
	e, f                *mat.Dense
	rms                 float64
	size                image.Point
}

// NewStereoParameters validates matrix shapes and copies the inputs. The rank of F is not checked
// here; see validate.CheckFundamental.
func NewStereoParameters(v StereoValues) (*StereoParameters, error) {
	for _, m := range []struct {
		name string
		m    mat.Matrix
	}{
		{"left intrinsic matrix", v.LeftK},
		{"right intrinsic matrix", v.RightK},
		{"rotation", v.R},
		{"essential matrix", v.E},
		{"fundamental matrix", v.F},
	} {
		if m.m == nil {
			return nil, errors.Errorf("%s is required", m.name)
		}
		if r, c := m.m.Dims(); r != 3 || c != 3 {
			return nil, errors.Errorf("%s must be 3x3, got %dx%d", m.name, r, c)
		}
	}
	for i, dist := range [][]float64{v.LeftDist, v.RightDist} {
		if len(dist) != transform.BrownConradyCoefficients && len(dist) != transform.RationalCoefficients {
			return nil, errors.Errorf("%s distortion vector must have %d or %d coefficients, got %d",
				[]string{"left", "right"}[i], transform.BrownConradyCoefficients, transform.RationalCoefficients, len(dist))
		}
	}
	if math.IsNaN(v.RMS) || math.IsInf(v.RMS, 0) || v.RMS < 0 {
		return nil, errors.Errorf("stereo rms error must be finite and non-negative, got %v", v.RMS)
	}
	if v.Size.X <= 0 || v.Size.Y <= 0 {
		return nil, errors.Errorf("image size must be positive, got %dx%d", v.Size.X, v.Size.Y)
	}
	return &StereoParameters{
		leftK:     mat.DenseCopyOf(v.LeftK),
		rightK:    mat.DenseCopyOf(v.RightK),
		leftDist:  append([]float64(nil), v.LeftDist...),
		rightDist: append([]float64(nil), v.RightDist...),
		r:         mat.DenseCopyOf(v.R),
		t:         v.T,
		e:         mat.DenseCopyOf(v.E),
		f:         mat.DenseCopyOf(v.F),
		rms:       v.RMS,
		size:      v.Size,
	}, nil
}

// PlaceholderStereo is the stereo block of a record loaded from a device file, which stores no
// extrinsics: identity rotation, zero translation and zero E and F.
func PlaceholderStereo(left, right *CameraParameters, size image.Point) (*StereoParameters, error) {
	if left == nil || right == nil {
		return nil, errors.New("both cameras are required")
	}
	return NewStereoParameters(StereoValues{
		LeftK:     left.K(),
		LeftDist:  left.Distortion(),
		RightK:    right.K(),
		RightDist: right.Distortion(),
		R:         transform.Identity(3),
		E:         mat.NewDense(3, 3, nil),
		F:         mat.NewDense(3, 3, nil),
		Size:      size,
	})
}

// Values returns a copy of every field.
func (s *StereoParameters) Values() StereoValues {
	return StereoValues{
		LeftK:     s.LeftK(),
		LeftDist:  s.LeftDistortion(),
		RightK:    s.RightK(),
		RightDist: s.RightDistortion(),
		R:         s.R(),
		T:         s.t,
		E:         s.E(),
		F:         s.F(),
		RMS:       s.rms,
		Size:      s.size,
	}
}

// LeftK returns a copy of the left intrinsic matrix.
func (s *StereoParameters) LeftK() *mat.Dense { return mat.DenseCopyOf(s.leftK) }

// RightK returns a copy of the right intrinsic matrix.
func (s *StereoParameters) RightK() *mat.Dense { return mat.DenseCopyOf(s.rightK) }

// LeftDistortion returns a copy of the refined left distortion vector.
func (s *StereoParameters) LeftDistortion() []float64 { return append([]float64(nil), s.leftDist...) }

// RightDistortion returns a copy of the refined right distortion vector.
func (s *StereoParameters) RightDistortion() []float64 { return append([]float64(nil), s.rightDist...) }

// R returns a copy of the rotation.
func (s *StereoParameters) R() *mat.Dense { return mat.DenseCopyOf(s.r) }

// T is the translation in millimeters.
func (s *StereoParameters) T() r3.Vector { return s.t }

// E returns a copy of the essential matrix.
func (s *StereoParameters) E() *mat.Dense { return mat.DenseCopyOf(s.e) }

// F returns a copy of the fundamental matrix.
func (s *StereoParameters) F() *mat.Dense { return mat.DenseCopyOf(s.f) }

// RMS is the stereo reprojection error.
func (s *StereoParameters) RMS() float64 { return s.rms }

// Size is the shared image size.
func (s *StereoParameters) Size() image.Point { return s.size }

// Baseline is the distance between the camera centers, the norm of T.
func (s *StereoParameters) Baseline() float64 {
	return s.t.Norm()
}

// Extrinsics returns R and T as a rigid transform.
func (s *StereoParameters) Extrinsics() *transform.RigidTransform {
	return transform.NewRigidTransform(s.r, s.t)
}

// IsPlaceholder reports whether this is the extrinsics-free block of a loaded device record.
func (s *StereoParameters) IsPlaceholder() bool {
	return s.t == (r3.Vector{}) && mat.Norm(s.f, 2) == 0 && mat.Norm(s.e, 2) == 0
}
