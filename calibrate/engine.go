// Package calibrate turns point correspondences into calibrated camera and stereo parameters by
// driving an optimization Engine, and reconciles the per-camera and stereo results into one
// consistent model.
package calibrate

import (
	"image"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
)

// Flag selects optimization options.
type Flag uint32

const (
	// FixIntrinsic holds the intrinsic matrices constant during stereo calibration.
	FixIntrinsic Flag = 1 << iota
	// RationalModel enables the eight coefficient distortion model.
	RationalModel
	// UseIntrinsicGuess starts the optimization from the supplied intrinsic matrices.
	UseIntrinsicGuess
)

// Has reports whether every bit of other is set.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, n := range []struct {
		flag Flag
		name string
	}{
		{FixIntrinsic, "fix_intrinsic"},
		{RationalModel, "rational_model"},
		{UseIntrinsicGuess, "use_intrinsic_guess"},
	} {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// TermCriteria bounds an optimization: it stops after MaxIter iterations or once the update is
// smaller than Epsilon.
type TermCriteria struct {
	MaxIter int
	Epsilon float64
}

// DefaultTermCriteria is used for every calibration call.
func DefaultTermCriteria() TermCriteria {
	return TermCriteria{MaxIter: 30, Epsilon: 0.001}
}

// SingleResult is what an Engine returns for one camera.
type SingleResult struct {
	RMS   float64
	K     *mat.Dense
	Dist  []float64
	Poses []calib.Pose
}

// StereoResult is what an Engine returns for a camera pair. A and B follow the argument order of
// CalibrateStereo. R and T take points from the A camera frame to the B camera frame.
type StereoResult struct {
	RMS   float64
	KA    *mat.Dense
	DistA []float64
	KB    *mat.Dense
	DistB []float64
	R     *mat.Dense
	T     r3.Vector
	E     *mat.Dense
	F     *mat.Dense
}

// Rectification holds the rectifying rotations (3x3) and the projection matrices (3x4) of the
// left and right cameras.
type Rectification struct {
	R1, R2 *mat.Dense
	P1, P2 *mat.Dense
}

// An Engine performs the numeric optimization behind calibration.
type Engine interface {
	CalibrateSingle(
		obj [][]r3.Vector,
		img [][]r2.Point,
		size image.Point,
		flags Flag,
		criteria TermCriteria,
	) (SingleResult, error)

	CalibrateStereo(
		obj [][]r3.Vector,
		imgA, imgB [][]r2.Point,
		kA mat.Matrix, distA []float64,
		kB mat.Matrix, distB []float64,
		size image.Point,
		flags Flag,
		criteria TermCriteria,
	) (StereoResult, error)

	Rectify(
		kLeft mat.Matrix, distLeft []float64,
		kRight mat.Matrix, distRight []float64,
		size image.Point,
		r mat.Matrix, t r3.Vector,
		alpha float64,
	) (Rectification, error)
}
