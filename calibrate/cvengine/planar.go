package cvengine

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/transform"
)

// planarTolerance is how far from Z = 0 an object point may lie, in target units.
const planarTolerance = 1e-6

// idealPoints maps pixels to undistorted normalized image coordinates.
func idealPoints(pts []r2.Point, k mat.Matrix, dist []float64) ([]r2.Point, error) {
	model, err := cameraModel(k, dist)
	if err != nil {
		return nil, err
	}
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		n := model.Normalize(p)
		n.X, n.Y = transform.Undistort(model.Distortion, n.X, n.Y)
		out[i] = n
	}
	return out, nil
}

// similarity returns the transform moving the centroid of pts to the origin and scaling their mean
// distance from it to sqrt(2), and its inverse.
func similarity(pts []r2.Point) (*mat.Dense, *mat.Dense) {
	var mean r2.Point
	for _, p := range pts {
		mean = mean.Add(p)
	}
	mean = mean.Mul(1 / float64(len(pts)))
	var spread float64
	for _, p := range pts {
		spread += p.Sub(mean).Norm()
	}
	spread /= float64(len(pts))
	s := 1.0
	if spread > 0 {
		s = math.Sqrt2 / spread
	}
	fwd := mat.NewDense(3, 3, []float64{s, 0, -s * mean.X, 0, s, -s * mean.Y, 0, 0, 1})
	inv := mat.NewDense(3, 3, []float64{1 / s, 0, mean.X, 0, 1 / s, mean.Y, 0, 0, 1})
	return fwd, inv
}

func apply3(h mat.Matrix, p r2.Point) r2.Point {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

// planeHomography estimates H with dst ~ H src by the normalized direct linear transform.
func planeHomography(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("homography needs matching point lists, got %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("homography needs at least 4 points, got %d", len(src))
	}
	srcT, _ := similarity(src)
	dstT, dstInv := similarity(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		s, d := apply3(srcT, src[i]), apply3(dstT, dst[i])
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize homography system")
	}
	if rank := svd.Rank(1e-12); rank < 8 {
		return nil, errors.Errorf("degenerate point configuration: homography system has rank %d", rank)
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		h.Set(i/3, i%3, v.At(i, 8))
	}

	var denorm, out mat.Dense
	denorm.Mul(dstInv, h)
	out.Mul(&denorm, srcT)
	return &out, nil
}

// boardPose recovers the placement of a planar target from one view with known intrinsics. The
// target must lie on Z = 0.
func boardPose(obj []r3.Vector, img []r2.Point, k mat.Matrix, dist []float64) (*transform.RigidTransform, error) {
	if len(obj) != len(img) {
		return nil, errors.Errorf("%d object points but %d image points", len(obj), len(img))
	}
	plane := make([]r2.Point, len(obj))
	for i, p := range obj {
		if math.Abs(p.Z) > planarTolerance {
			return nil, errors.Errorf("object point %d is not on the target plane: z = %v", i, p.Z)
		}
		plane[i] = r2.Point{X: p.X, Y: p.Y}
	}
	ideal, err := idealPoints(img, k, dist)
	if err != nil {
		return nil, err
	}
	h, err := planeHomography(plane, ideal)
	if err != nil {
		return nil, err
	}

	col := func(j int) r3.Vector { return r3.Vector{X: h.At(0, j), Y: h.At(1, j), Z: h.At(2, j)} }
	h1, h2, h3 := col(0), col(1), col(2)
	scale := 2 / (h1.Norm() + h2.Norm())
	if h3.Z < 0 {
		scale = -scale
	}
	r1, r2v, t := h1.Mul(scale), h2.Mul(scale), h3.Mul(scale)
	r3v := r1.Cross(r2v)
	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, err := nearestRotation(approx)
	if err != nil {
		return nil, err
	}
	return transform.NewRigidTransform(rot, t), nil
}

// nearestRotation projects m onto SO(3).
func nearestRotation(m mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize rotation estimate")
	}
	var u, v, rot mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		rot.Mul(&u, v.T())
	}
	return &rot, nil
}
