package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// A Rodrigues vector is an R3 axis angle: its direction is the rotation axis and its norm is the
// rotation angle in radians.

// RodriguesToQuat converts a Rodrigues vector to a unit quaternion.
func RodriguesToQuat(rvec r3.Vector) quat.Number {
	theta := rvec.Norm()
	if theta < 1e-12 {
		return quat.Number{Real: 1}
	}
	axis := rvec.Mul(1 / theta)
	sinA := math.Sin(theta / 2)
	return quat.Number{Real: math.Cos(theta / 2), Imag: axis.X * sinA, Jmag: axis.Y * sinA, Kmag: axis.Z * sinA}
}

// QuatToRotationMatrix returns the 3x3 rotation matrix of a unit quaternion.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RodriguesToMatrix converts a Rodrigues vector to a rotation matrix.
func RodriguesToMatrix(rvec r3.Vector) *mat.Dense {
	return QuatToRotationMatrix(RodriguesToQuat(rvec))
}

// MatrixToRodrigues converts a 3x3 rotation matrix to a Rodrigues vector.
func MatrixToRodrigues(rot mat.Matrix) (r3.Vector, error) {
	if r, c := rot.Dims(); r != 3 || c != 3 {
		return r3.Vector{}, errors.Errorf("rotation matrix must be 3x3, got %dx%d", r, c)
	}
	q := matrixToQuat(rot)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	imag := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := imag.Norm()
	if sinHalf < 1e-12 {
		return r3.Vector{}, nil
	}
	theta := 2 * math.Atan2(sinHalf, q.Real)
	return imag.Mul(theta / sinHalf), nil
}

// matrixToQuat uses Shepperd's method, choosing the largest diagonal term for stability.
func matrixToQuat(m mat.Matrix) quat.Number {
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	trace := m00 + m11 + m22
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (m.At(2, 1) - m.At(1, 2)) * s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) * s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) * s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// EulerAngles holds rotations in degrees about X (pitch), Y (yaw) and Z (roll), applied X first.
type EulerAngles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// RotationMatrixToEuler decomposes R = Rz(roll) * Ry(yaw) * Rx(pitch). Near gimbal lock roll is
// reported as zero.
func RotationMatrixToEuler(rot mat.Matrix) EulerAngles {
	sy := math.Hypot(rot.At(0, 0), rot.At(1, 0))
	var pitch, yaw, roll float64
	if sy >= 1e-6 {
		pitch = math.Atan2(rot.At(2, 1), rot.At(2, 2))
		yaw = math.Atan2(-rot.At(2, 0), sy)
		roll = math.Atan2(rot.At(1, 0), rot.At(0, 0))
	} else {
		pitch = math.Atan2(-rot.At(1, 2), rot.At(1, 1))
		yaw = math.Atan2(-rot.At(2, 0), sy)
	}
	return EulerAngles{Pitch: radToDeg(pitch), Yaw: radToDeg(yaw), Roll: radToDeg(roll)}
}

// RotationMatrix returns Rz(roll) * Ry(yaw) * Rx(pitch).
func (ea EulerAngles) RotationMatrix() *mat.Dense {
	p, y, r := degToRad(ea.Pitch), degToRad(ea.Yaw), degToRad(ea.Roll)
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(p), -math.Sin(p),
		0, math.Sin(p), math.Cos(p),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(y), 0, math.Sin(y),
		0, 1, 0,
		-math.Sin(y), 0, math.Cos(y),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(r), -math.Sin(r), 0,
		math.Sin(r), math.Cos(r), 0,
		0, 0, 1,
	})
	var out mat.Dense
	out.Mul(rz, ry)
	out.Mul(&out, rx)
	return &out
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
