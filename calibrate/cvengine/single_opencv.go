//go:build opencv

package cvengine

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/transform"
)

// Available reports whether single camera calibration is compiled in.
const Available = true

// CalibrateSingle runs OpenCV's camera calibration with the five coefficient model. OpenCV picks
// its own termination criteria. Board poses are recovered from the fitted intrinsics.
func (e *Engine) CalibrateSingle(
	obj [][]r3.Vector,
	img [][]r2.Point,
	size image.Point,
	flags calibrate.Flag,
	criteria calibrate.TermCriteria,
) (calibrate.SingleResult, error) {
	if flags != 0 {
		return calibrate.SingleResult{}, errors.Errorf("single camera calibration supports no flags, got %s", flags)
	}
	if len(obj) == 0 || len(obj) != len(img) {
		return calibrate.SingleResult{}, errors.Errorf("need matching views, got %d object and %d image sets", len(obj), len(img))
	}
	objPts := make([][]gocv.Point3f, len(obj))
	imgPts := make([][]gocv.Point2f, len(img))
	for i := range obj {
		if len(obj[i]) != len(img[i]) {
			return calibrate.SingleResult{}, errors.Errorf("view %d has %d object points but %d image points",
				i, len(obj[i]), len(img[i]))
		}
		for j, p := range obj[i] {
			objPts[i] = append(objPts[i], gocv.Point3f{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)})
			imgPts[i] = append(imgPts[i], gocv.Point2f{X: float32(img[i][j].X), Y: float32(img[i][j].Y)})
		}
	}
	objVec := gocv.NewPoints3fVectorFromPoints(objPts)
	defer objVec.Close()
	imgVec := gocv.NewPoints2fVectorFromPoints(imgPts)
	defer imgVec.Close()

	k, dist, rvecs, tvecs := gocv.NewMat(), gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer k.Close()
	defer dist.Close()
	defer rvecs.Close()
	defer tvecs.Close()
	rms := gocv.CalibrateCamera(objVec, imgVec, size, &k, &dist, &rvecs, &tvecs, 0)
	if k.Empty() || dist.Empty() {
		return calibrate.SingleResult{}, errors.New("opencv returned no camera matrix")
	}

	kOut := togonum(&k)
	var coeffs []float64
	for r := 0; r < dist.Rows(); r++ {
		for c := 0; c < dist.Cols(); c++ {
			coeffs = append(coeffs, dist.GetDoubleAt(r, c))
		}
	}
	if len(coeffs) > transform.BrownConradyCoefficients {
		coeffs = coeffs[:transform.BrownConradyCoefficients]
	}

	poses := make([]calib.Pose, len(obj))
	for i := range obj {
		pose, err := boardPose(obj[i], img[i], kOut, coeffs)
		if err != nil {
			return calibrate.SingleResult{}, errors.Wrapf(err, "view %d", i)
		}
		rvec, err := transform.MatrixToRodrigues(pose.Rotation)
		if err != nil {
			return calibrate.SingleResult{}, err
		}
		poses[i] = calib.Pose{Rotation: rvec, Translation: pose.Translation}
	}
	e.logger.Debugw("camera calibrated", "views", len(obj), "rms", rms)
	return calibrate.SingleResult{RMS: rms, K: kOut, Dist: coeffs, Poses: poses}, nil
}

func togonum(m *gocv.Mat) *mat.Dense {
	out := mat.NewDense(m.Rows(), m.Cols(), nil)
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			out.Set(r, c, m.GetDoubleAt(r, c))
		}
	}
	return out
}
