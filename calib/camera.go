// Package calib holds the calibration parameter model: per-camera intrinsics and distortion,
// stereo extrinsics, and the combined device calibration record.
//
// CameraParameters and StereoParameters are immutable. Constructors copy their inputs and
// accessors return copies, so a value produced by one calibration run can be shared freely.
package calib

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/transform"
)

// Indices into a distortion vector, in calibration order.
const (
	IndexK1 = iota
	IndexK2
	IndexP1
	IndexP2
	IndexK3
	IndexK4
	IndexK5
	IndexK6
)

// CalibrationFieldCount is the number of calibration values a camera contributes to a device
// record: fx fy cx cy k1 k2 p1 p2 k3 k4 k5 k6.
const CalibrationFieldCount = 12

// MinimumRecordFields is the shortest camera record accepted: fx fy cx cy k1 k2 p1 p2 k3.
const MinimumRecordFields = 9

const structureTolerance = 1e-9

// Pose is the placement of a calibration target relative to a camera for one image.
type Pose struct {
	// Rotation is a Rodrigues vector.
	Rotation    r3.Vector
	Translation r3.Vector
}

// Transform returns the pose as a rigid transform from target to camera coordinates.
func (p Pose) Transform() *transform.RigidTransform {
	return transform.NewRigidTransform(transform.RodriguesToMatrix(p.Rotation), p.Translation)
}

// CameraParameters is the calibrated model of one camera.
type CameraParameters struct {
	k     *mat.Dense
	dist  []float64
	size  image.Point
	rms   float64
	poses []Pose
}

// NewCameraParameters validates and copies the inputs. The distortion vector must hold 5
// (k1 k2 p1 p2 k3) or 8 (adding k4 k5 k6) coefficients.
func NewCameraParameters(k mat.Matrix, dist []float64, size image.Point, rms float64, poses []Pose) (*CameraParameters, error) {
	if k == nil {
		return nil, errors.New("intrinsic matrix is required")
	}
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("intrinsic matrix must be 3x3, got %dx%d", r, c)
	}
	if math.Abs(k.At(1, 0)) > structureTolerance || math.Abs(k.At(2, 0)) > structureTolerance ||
		math.Abs(k.At(2, 1)) > structureTolerance || math.Abs(k.At(2, 2)-1) > structureTolerance {
		return nil, errors.Errorf("intrinsic matrix must have the form [fx 0 cx; 0 fy cy; 0 0 1], got %v",
			mat.Formatted(k, mat.Squeeze()))
	}
	if len(dist) != transform.BrownConradyCoefficients && len(dist) != transform.RationalCoefficients {
		return nil, errors.Errorf("distortion vector must have %d or %d coefficients, got %d",
			transform.BrownConradyCoefficients, transform.RationalCoefficients, len(dist))
	}
	for i, c := range dist {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.Errorf("distortion coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(rms) || math.IsInf(rms, 0) || rms < 0 {
		return nil, errors.Errorf("rms error must be finite and non-negative, got %v", rms)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("image size must be positive, got %dx%d", size.X, size.Y)
	}

	var poseCopy []Pose
	if len(poses) > 0 {
		poseCopy = append([]Pose(nil), poses...)
	}
	return &CameraParameters{
		k:     mat.DenseCopyOf(k),
		dist:  append([]float64(nil), dist...),
		size:  size,
		rms:   rms,
		poses: poseCopy,
	}, nil
}

// NewCameraParametersFromRecord builds a camera from a device record line's values
// (fx fy cx cy k1 k2 p1 p2 k3 [k4 k5 k6] ...). The result always carries 8 coefficients; missing
// k4..k6 are zero and anything past k6 is ignored.
func NewCameraParametersFromRecord(values []float64, size image.Point) (*CameraParameters, error) {
	if len(values) < MinimumRecordFields {
		return nil, errors.Errorf("camera record needs at least %d values, got %d", MinimumRecordFields, len(values))
	}
	k := mat.NewDense(3, 3, []float64{
		values[0], 0, values[2],
		0, values[1], values[3],
		0, 0, 1,
	})
	dist := make([]float64, transform.RationalCoefficients)
	copy(dist, values[4:])
	return NewCameraParameters(k, dist, size, 0, nil)
}

// K returns a copy of the intrinsic matrix.
func (c *CameraParameters) K() *mat.Dense {
	return mat.DenseCopyOf(c.k)
}

// Distortion returns a copy of the distortion vector.
func (c *CameraParameters) Distortion() []float64 {
	return append([]float64(nil), c.dist...)
}

// Size is the image size in pixels the camera was calibrated at.
func (c *CameraParameters) Size() image.Point {
	return c.size
}

// RMS is the reprojection error of the calibration that produced this camera.
func (c *CameraParameters) RMS() float64 {
	return c.rms
}

// Poses returns a copy of the per-image target poses, possibly empty.
func (c *CameraParameters) Poses() []Pose {
	return append([]Pose(nil), c.poses...)
}

// Fx is the horizontal focal length in pixels.
func (c *CameraParameters) Fx() float64 { return c.k.At(0, 0) }

// Fy is the vertical focal length in pixels.
func (c *CameraParameters) Fy() float64 { return c.k.At(1, 1) }

// Cx is the principal point column.
func (c *CameraParameters) Cx() float64 { return c.k.At(0, 2) }

// Cy is the principal point row.
func (c *CameraParameters) Cy() float64 { return c.k.At(1, 2) }

// Coefficient returns distortion coefficient i, or 0 when the vector is shorter than i+1. This is
// what lets a 5 coefficient camera report k4..k6 as zero.
func (c *CameraParameters) Coefficient(i int) float64 {
	if i < 0 || i >= len(c.dist) {
		return 0
	}
	return c.dist[i]
}

// K1 is the first radial coefficient.
func (c *CameraParameters) K1() float64 { return c.Coefficient(IndexK1) }

// K2 is the second radial coefficient.
func (c *CameraParameters) K2() float64 { return c.Coefficient(IndexK2) }

// P1 is the first tangential coefficient.
func (c *CameraParameters) P1() float64 { return c.Coefficient(IndexP1) }

// P2 is the second tangential coefficient.
func (c *CameraParameters) P2() float64 { return c.Coefficient(IndexP2) }

// K3 is the third radial coefficient.
func (c *CameraParameters) K3() float64 { return c.Coefficient(IndexK3) }

// K4 is the fourth radial (rational model) coefficient.
func (c *CameraParameters) K4() float64 { return c.Coefficient(IndexK4) }

// K5 is the fifth radial coefficient.
func (c *CameraParameters) K5() float64 { return c.Coefficient(IndexK5) }

// K6 is the sixth radial coefficient.
func (c *CameraParameters) K6() float64 { return c.Coefficient(IndexK6) }

// CalibrationFields returns fx fy cx cy k1 k2 p1 p2 k3 k4 k5 k6.
func (c *CameraParameters) CalibrationFields() [CalibrationFieldCount]float64 {
	return [CalibrationFieldCount]float64{
		c.Fx(), c.Fy(), c.Cx(), c.Cy(),
		c.K1(), c.K2(), c.P1(), c.P2(), c.K3(),
		c.K4(), c.K5(), c.K6(),
	}
}

// WithDistortion returns a camera with the same intrinsics, size, rms and poses but a new
// distortion vector.
func (c *CameraParameters) WithDistortion(dist []float64) (*CameraParameters, error) {
	return NewCameraParameters(c.k, dist, c.size, c.rms, c.poses)
}

// DistortionModel names the lens model implied by the coefficient count.
func (c *CameraParameters) DistortionModel() transform.DistortionType {
	if len(c.dist) == transform.RationalCoefficients {
		return transform.RationalDistortionType
	}
	return transform.BrownConradyDistortionType
}

// Intrinsics returns the pinhole view of the camera.
func (c *CameraParameters) Intrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width:  c.size.X,
		Height: c.size.Y,
		Fx:     c.Fx(),
		Fy:     c.Fy(),
		Ppx:    c.Cx(),
		Ppy:    c.Cy(),
	}
}

// Model returns the full pinhole model including distortion.
func (c *CameraParameters) Model() (*transform.PinholeCameraModel, error) {
	distorter, err := transform.NewDistorterFromCoefficients(c.dist)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: c.Intrinsics(), Distortion: distorter}, nil
}
