// Package validate computes quality metrics for a calibration: reprojection error, image
// coverage, fundamental matrix checks and a summary report. Nothing here performs I/O.
package validate

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/transform"
)

// DefaultOutlierThreshold is the per-image error, in pixels, above which an image is an outlier.
const DefaultOutlierThreshold = 1.0

// A Projector maps object points through a pose and camera model to pixels.
type Projector func(obj []r3.Vector, rvec, tvec r3.Vector, k mat.Matrix, dist []float64) ([]r2.Point, error)

func orDefault(p Projector) Projector {
	if p == nil {
		return transform.ProjectPoints
	}
	return p
}

// ReprojectionError re-projects each image's object points with that image's stored pose and
// compares them to the detected points. The error of one image is the L2 norm of all residuals
// divided by the point count; mean is the average over images. A nil projector uses
// transform.ProjectPoints.
func ReprojectionError(
	obj [][]r3.Vector,
	img [][]r2.Point,
	camera *calib.CameraParameters,
	projector Projector,
) (float64, []float64, error) {
	if camera == nil {
		return 0, nil, errors.New("camera parameters are required")
	}
	poses := camera.Poses()
	if len(poses) != len(obj) {
		return 0, nil, errors.Errorf("camera has %d poses for %d object point sets", len(poses), len(obj))
	}
	if len(img) != len(obj) {
		return 0, nil, errors.Errorf("%d image point sets for %d object point sets", len(img), len(obj))
	}
	project := orDefault(projector)
	k, dist := camera.K(), camera.Distortion()

	perImage := make([]float64, len(obj))
	for i := range obj {
		projected, err := project(obj[i], poses[i].Rotation, poses[i].Translation, k, dist)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "projecting image %d", i)
		}
		e, err := imageError(img[i], projected)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "image %d", i)
		}
		perImage[i] = e
	}
	mean, err := meanOf(perImage)
	if err != nil {
		return 0, nil, err
	}
	return mean, perImage, nil
}

// StereoReprojectionErrors measures how well the stereo model explains both views. Each image is
// placed with the left camera pose from leftPoses; the left projection uses that pose directly and
// the right projection moves it into the right camera frame through the inverse of the stereo
// extrinsics.
func StereoReprojectionErrors(
	obj [][]r3.Vector,
	imgLeft, imgRight [][]r2.Point,
	leftPoses []calib.Pose,
	stereo *calib.StereoParameters,
	projector Projector,
) ([]float64, []float64, error) {
	if stereo == nil {
		return nil, nil, errors.New("stereo parameters are required")
	}
	if len(imgLeft) != len(obj) || len(imgRight) != len(obj) || len(leftPoses) != len(obj) {
		return nil, nil, errors.Errorf(
			"set counts differ: %d object, %d left, %d right, %d poses",
			len(obj), len(imgLeft), len(imgRight), len(leftPoses))
	}
	project := orDefault(projector)
	toRight := stereo.Extrinsics().Inverse()

	errsLeft := make([]float64, len(obj))
	errsRight := make([]float64, len(obj))
	for i := range obj {
		pose := leftPoses[i]
		left, err := project(obj[i], pose.Rotation, pose.Translation, stereo.LeftK(), stereo.LeftDistortion())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "projecting left image %d", i)
		}
		if errsLeft[i], err = imageError(imgLeft[i], left); err != nil {
			return nil, nil, errors.Wrapf(err, "left image %d", i)
		}

		rightPose := pose.Transform().Compose(toRight)
		rvec, err := transform.MatrixToRodrigues(rightPose.Rotation)
		if err != nil {
			return nil, nil, err
		}
		right, err := project(obj[i], rvec, rightPose.Translation, stereo.RightK(), stereo.RightDistortion())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "projecting right image %d", i)
		}
		if errsRight[i], err = imageError(imgRight[i], right); err != nil {
			return nil, nil, errors.Wrapf(err, "right image %d", i)
		}
	}
	return errsLeft, errsRight, nil
}

// Outliers returns the indices of images whose error is above threshold.
func Outliers(perImage []float64, threshold float64) []int {
	var out []int
	for i, e := range perImage {
		if e > threshold {
			out = append(out, i)
		}
	}
	return out
}

func imageError(detected, projected []r2.Point) (float64, error) {
	if len(detected) != len(projected) {
		return 0, errors.Errorf("%d detected points for %d projected points", len(detected), len(projected))
	}
	if len(projected) == 0 {
		return 0, errors.New("no points")
	}
	var sum float64
	for j, p := range projected {
		d := detected[j].Sub(p)
		sum += d.X*d.X + d.Y*d.Y
	}
	return math.Sqrt(sum) / float64(len(projected)), nil
}

// meanOf is the mean of values, zero for none.
func meanOf(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	return stats.Mean(values)
}

// maxOf is the largest of values, zero for none.
func maxOf(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	return stats.Max(values)
}
