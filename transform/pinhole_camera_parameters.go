// Package transform contains the camera geometry used by calibration: pinhole intrinsics,
// lens distortion models, rotation conversions and point projection.
package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when a camera has no usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with a reason.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics are the entries of a camera matrix K plus the image size.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx and ppy out of a 3x3 camera matrix. Skew
// is ignored.
func NewPinholeCameraIntrinsicsFromMatrix(k mat.Matrix, size image.Point) (*PinholeCameraIntrinsics, error) {
	if k == nil {
		return nil, NewNoIntrinsicsError("camera matrix is nil")
	}
	if r, c := k.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	return &PinholeCameraIntrinsics{
		Width:  size.X,
		Height: size.Y,
		Fx:     k.At(0, 0),
		Fy:     k.At(1, 1),
		Ppx:    k.At(0, 2),
		Ppy:    k.At(1, 2),
	}, nil
}

// CheckValid requires a positive size and focal lengths and a principal point that is not negative.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics are nil")
	}
	for _, c := range []struct {
		ok   bool
		what string
		val  interface{}
	}{
		{params.Width > 0 && params.Height > 0, "size", image.Pt(params.Width, params.Height)},
		{params.Fx > 0, "focal length fx", params.Fx},
		{params.Fy > 0, "focal length fy", params.Fy},
		{params.Ppx >= 0, "principal point x", params.Ppx},
		{params.Ppy >= 0, "principal point y", params.Ppy},
	} {
		if !c.ok {
			return errors.Wrapf(ErrNoIntrinsics, "invalid %s %v", c.what, c.val)
		}
	}
	return nil
}

// Normalize maps a pixel to normalized image coordinates (x/z, y/z).
func (params *PinholeCameraIntrinsics) Normalize(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy}
}

// Denormalize is the inverse of Normalize.
func (params *PinholeCameraIntrinsics) Denormalize(p r2.Point) r2.Point {
	return r2.Point{X: p.X*params.Fx + params.Ppx, Y: p.Y*params.Fy + params.Ppy}
}

// PixelToPoint back-projects a pixel at depth z into the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	n := params.Normalize(r2.Point{X: x, Y: y})
	return n.X * z, n.Y * z, z
}

// PointToPixel projects a camera frame point onto the image. Points with z == 0 land at (-1, -1),
// outside every image.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	p := params.Denormalize(r2.Point{X: x / z, Y: y / z})
	return p.X, p.Y
}

// Contains reports whether the sub-pixel location lies inside the image.
func (params *PinholeCameraIntrinsics) Contains(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	return x >= 0 && y >= 0 && x < float64(params.Width) && y < float64(params.Height)
}

// GetCameraMatrix returns K = [fx 0 ppx; 0 fy ppy; 0 0 1].
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PinholeCameraModel is a pinhole camera with a lens model. A nil Distortion is an ideal lens.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// Distort maps an ideal pixel to where the lens images it.
func (params *PinholeCameraModel) Distort(p r2.Point) r2.Point {
	if params.Distortion == nil {
		return p
	}
	n := params.Normalize(p)
	n.X, n.Y = params.Distortion.Transform(n.X, n.Y)
	return params.Denormalize(n)
}

// DistortionMap is Distort as a coordinate function.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		p := params.Distort(r2.Point{X: u, Y: v})
		return p.X, p.Y
	}
}
