// Package cvengine is the calibration Engine used by the command line tool. Single camera
// calibration runs OpenCV and needs a build with -tags opencv. Stereo calibration with fixed
// intrinsics and rectification are closed form and always available.
package cvengine

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/logging"
	"github.com/seal3d/sealcalib/transform"
)

var _ calibrate.Engine = (*Engine)(nil)

// Engine implements calibrate.Engine.
type Engine struct {
	logger logging.Logger
}

// NewEngine returns an Engine.
func NewEngine(logger logging.Logger) *Engine {
	return &Engine{logger: logger}
}

// CalibrateStereo estimates the transform from camera A to camera B with both intrinsics held
// fixed. Every view gives one estimate through the target's pose in each camera; rotations are
// averaged as quaternions and translations arithmetically. The estimate is closed form, so the
// termination criteria are not used. With RationalModel the distortion vectors come back padded
// to eight coefficients.
func (e *Engine) CalibrateStereo(
	obj [][]r3.Vector,
	imgA, imgB [][]r2.Point,
	kA mat.Matrix, distA []float64,
	kB mat.Matrix, distB []float64,
	size image.Point,
	flags calibrate.Flag,
	criteria calibrate.TermCriteria,
) (calibrate.StereoResult, error) {
	if !flags.Has(calibrate.FixIntrinsic) {
		return calibrate.StereoResult{}, errors.Errorf("stereo calibration refines extrinsics only, flags %s lack %s",
			flags, calibrate.FixIntrinsic)
	}
	if len(obj) == 0 || len(imgA) != len(obj) || len(imgB) != len(obj) {
		return calibrate.StereoResult{}, errors.Errorf("need matching views, got %d object, %d A and %d B sets",
			len(obj), len(imgA), len(imgB))
	}

	posesA := make([]*transform.RigidTransform, len(obj))
	var qSum quat.Number
	var tSum r3.Vector
	var qFirst quat.Number
	for i := range obj {
		poseA, err := boardPose(obj[i], imgA[i], kA, distA)
		if err != nil {
			return calibrate.StereoResult{}, errors.Wrapf(err, "view %d in camera A", i)
		}
		poseB, err := boardPose(obj[i], imgB[i], kB, distB)
		if err != nil {
			return calibrate.StereoResult{}, errors.Wrapf(err, "view %d in camera B", i)
		}
		posesA[i] = poseA
		rel := poseA.Inverse().Compose(poseB)
		rvec, err := transform.MatrixToRodrigues(rel.Rotation)
		if err != nil {
			return calibrate.StereoResult{}, err
		}
		q := transform.RodriguesToQuat(rvec)
		if i == 0 {
			qFirst = q
		} else if quatDot(q, qFirst) < 0 {
			q = quat.Scale(-1, q)
		}
		qSum = quat.Add(qSum, q)
		tSum = tSum.Add(rel.Translation)
	}
	qMean := quat.Scale(1/quat.Abs(qSum), qSum)
	rot := transform.QuatToRotationMatrix(qMean)
	t := tSum.Mul(1 / float64(len(obj)))
	extrinsics := transform.NewRigidTransform(rot, t)

	rms, err := stereoRMS(obj, imgA, imgB, posesA, extrinsics, kA, distA, kB, distB)
	if err != nil {
		return calibrate.StereoResult{}, err
	}
	f, err := transform.FundamentalFromExtrinsics(kA, kB, rot, t)
	if err != nil {
		return calibrate.StereoResult{}, err
	}
	outA, outB := append([]float64(nil), distA...), append([]float64(nil), distB...)
	if flags.Has(calibrate.RationalModel) {
		outA, outB = padDistortion(distA), padDistortion(distB)
	}
	e.logger.Debugw("stereo extrinsics estimated", "views", len(obj), "rms", rms, "baseline", t.Norm())
	return calibrate.StereoResult{
		RMS:   rms,
		KA:    mat.DenseCopyOf(kA),
		DistA: outA,
		KB:    mat.DenseCopyOf(kB),
		DistB: outB,
		R:     rot,
		T:     t,
		E:     transform.EssentialFromExtrinsics(rot, t),
		F:     f,
	}, nil
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func padDistortion(dist []float64) []float64 {
	out := make([]float64, max(len(dist), transform.RationalCoefficients))
	copy(out, dist)
	return out
}

func cameraModel(k mat.Matrix, dist []float64) (*transform.PinholeCameraModel, error) {
	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromMatrix(k, image.Point{})
	if err != nil {
		return nil, err
	}
	distorter, err := transform.NewDistorterFromCoefficients(dist)
	if err != nil {
		return nil, err
	}
	return &transform.PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distorter}, nil
}

// stereoRMS reprojects every view into A through its own pose and into B through that pose
// followed by the extrinsics.
func stereoRMS(
	obj [][]r3.Vector,
	imgA, imgB [][]r2.Point,
	posesA []*transform.RigidTransform,
	extrinsics *transform.RigidTransform,
	kA mat.Matrix, distA []float64,
	kB mat.Matrix, distB []float64,
) (float64, error) {
	modelA, err := cameraModel(kA, distA)
	if err != nil {
		return 0, err
	}
	modelB, err := cameraModel(kB, distB)
	if err != nil {
		return 0, err
	}
	var sumSq float64
	var n int
	for i := range obj {
		projA, err := transform.ProjectPointsWithModel(obj[i], posesA[i], modelA)
		if err != nil {
			return 0, err
		}
		projB, err := transform.ProjectPointsWithModel(obj[i], posesA[i].Compose(extrinsics), modelB)
		if err != nil {
			return 0, err
		}
		for j := range obj[i] {
			dA, dB := projA[j].Sub(imgA[i][j]), projB[j].Sub(imgB[i][j])
			sumSq += dA.Dot(dA) + dB.Dot(dB)
			n += 2
		}
	}
	if n == 0 {
		return 0, errors.New("no points to reproject")
	}
	return math.Sqrt(sumSq / float64(n)), nil
}
