package transform

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ProjectPoints maps object points through the pose (rvec, tvec) into the camera frame, applies
// the lens model given by dist and returns pixel locations. It is the projection primitive used
// to compute reprojection error.
func ProjectPoints(obj []r3.Vector, rvec, tvec r3.Vector, k mat.Matrix, dist []float64) ([]r2.Point, error) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromMatrix(k, image.Point{})
	if err != nil {
		return nil, err
	}
	distorter, err := NewDistorterFromCoefficients(dist)
	if err != nil {
		return nil, err
	}
	return ProjectPointsWithModel(obj, NewRigidTransform(RodriguesToMatrix(rvec), tvec),
		&PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distorter})
}

// ProjectPointsWithModel is ProjectPoints for an already built camera model and pose.
func ProjectPointsWithModel(obj []r3.Vector, pose *RigidTransform, model *PinholeCameraModel) ([]r2.Point, error) {
	if model == nil || model.PinholeCameraIntrinsics == nil {
		return nil, NewNoIntrinsicsError("camera model has no intrinsics")
	}
	out := make([]r2.Point, len(obj))
	for i, pt := range obj {
		cam := pose.Apply(pt)
		if cam.Z == 0 {
			return nil, errors.Errorf("object point %d projects onto the camera plane", i)
		}
		n := r2.Point{X: cam.X / cam.Z, Y: cam.Y / cam.Z}
		if model.Distortion != nil {
			n.X, n.Y = model.Distortion.Transform(n.X, n.Y)
		}
		out[i] = model.Denormalize(n)
	}
	return out, nil
}
