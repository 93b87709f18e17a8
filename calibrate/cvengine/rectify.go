package cvengine

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/transform"
)

// borderSamples is how many pixels along each image edge are traced through the rectifying
// rotation when sizing the rectified view.
const borderSamples = 9

type box struct {
	minX, maxX, minY, maxY float64
}

// Rectify splits the rotation between the cameras evenly and then turns both views so the
// baseline lies along the image rows. r and t take right camera points to the left camera frame.
// Both rectified views share one focal length and the image center as principal point; alpha 0
// keeps only pixels valid in both views, alpha 1 keeps every source pixel.
func (e *Engine) Rectify(
	kLeft mat.Matrix, distLeft []float64,
	kRight mat.Matrix, distRight []float64,
	size image.Point,
	r mat.Matrix, t r3.Vector,
	alpha float64,
) (calibrate.Rectification, error) {
	if size.X < 2 || size.Y < 2 {
		return calibrate.Rectification{}, errors.Errorf("image size %v is too small to rectify", size)
	}
	if t.Norm() == 0 {
		return calibrate.Rectification{}, errors.New("cameras share an optical center, baseline is zero")
	}
	leftToRight := transform.NewRigidTransform(r, t).Inverse()
	om, err := transform.MatrixToRodrigues(leftToRight.Rotation)
	if err != nil {
		return calibrate.Rectification{}, err
	}
	half := transform.RodriguesToMatrix(om.Mul(-0.5))
	tt := transform.NewRigidTransform(half, r3.Vector{}).Apply(leftToRight.Translation)

	idx := 1
	c := tt.Y
	uu := r3.Vector{Y: 1}
	if math.Abs(tt.X) > math.Abs(tt.Y) {
		idx, c, uu = 0, tt.X, r3.Vector{X: 1}
	}
	if c < 0 {
		uu = uu.Mul(-1)
	}
	ww := tt.Cross(uu)
	wR := transform.Identity(3)
	if nw := ww.Norm(); nw > 0 {
		wR = transform.RodriguesToMatrix(ww.Mul(math.Acos(math.Abs(c)/tt.Norm()) / nw))
	}
	var r1, r2m mat.Dense
	r1.Mul(wR, half.T())
	r2m.Mul(wR, half)
	tNew := transform.NewRigidTransform(&r2m, r3.Vector{}).Apply(leftToRight.Translation)

	innerL, outerL, err := rectifiedBounds(kLeft, distLeft, size, &r1)
	if err != nil {
		return calibrate.Rectification{}, errors.Wrap(err, "left camera")
	}
	innerR, outerR, err := rectifiedBounds(kRight, distRight, size, &r2m)
	if err != nil {
		return calibrate.Rectification{}, errors.Wrap(err, "right camera")
	}
	inner := box{
		minX: math.Max(innerL.minX, innerR.minX), maxX: math.Min(innerL.maxX, innerR.maxX),
		minY: math.Max(innerL.minY, innerR.minY), maxY: math.Min(innerL.maxY, innerR.maxY),
	}
	outer := box{
		minX: math.Min(outerL.minX, outerR.minX), maxX: math.Max(outerL.maxX, outerR.maxX),
		minY: math.Min(outerL.minY, outerR.minY), maxY: math.Max(outerL.maxY, outerR.maxY),
	}
	if !(inner.minX < 0 && inner.maxX > 0 && inner.minY < 0 && inner.maxY > 0) {
		return calibrate.Rectification{}, errors.New("rectified views do not overlap the image center")
	}

	cx, cy := float64(size.X-1)/2, float64(size.Y-1)/2
	w, h := float64(size.X-1), float64(size.Y-1)
	fInner := math.Max(math.Max(cx/-inner.minX, (w-cx)/inner.maxX), math.Max(cy/-inner.minY, (h-cy)/inner.maxY))
	fOuter := math.Min(math.Min(cx/-outer.minX, (w-cx)/outer.maxX), math.Min(cy/-outer.minY, (h-cy)/outer.maxY))
	fc := fInner*(1-alpha) + fOuter*alpha

	p1 := mat.NewDense(3, 4, []float64{
		fc, 0, cx, 0,
		0, fc, cy, 0,
		0, 0, 1, 0,
	})
	p2 := mat.DenseCopyOf(p1)
	if idx == 0 {
		p2.Set(0, 3, fc*tNew.X)
	} else {
		p2.Set(1, 3, fc*tNew.Y)
	}
	e.logger.Debugw("rectification computed", "alpha", alpha, "focal", fc, "vertical", idx == 1)
	return calibrate.Rectification{R1: &r1, R2: &r2m, P1: p1, P2: p2}, nil
}

// rectifiedBounds traces the image border through undistortion and the rectifying rotation. inner
// is the largest box whose sides stay within every edge, outer the box around the whole border.
// Both are in normalized rectified coordinates.
func rectifiedBounds(k mat.Matrix, dist []float64, size image.Point, rot mat.Matrix) (box, box, error) {
	w, h := float64(size.X-1), float64(size.Y-1)
	edge := func(from, to r2.Point) []r2.Point {
		pts := make([]r2.Point, borderSamples)
		for i := range pts {
			s := float64(i) / float64(borderSamples-1)
			pts[i] = from.Add(to.Sub(from).Mul(s))
		}
		return pts
	}
	edges := [4][]r2.Point{
		edge(r2.Point{X: 0, Y: 0}, r2.Point{X: 0, Y: h}), // left
		edge(r2.Point{X: w, Y: 0}, r2.Point{X: w, Y: h}), // right
		edge(r2.Point{X: 0, Y: 0}, r2.Point{X: w, Y: 0}), // top
		edge(r2.Point{X: 0, Y: h}, r2.Point{X: w, Y: h}), // bottom
	}
	turn := transform.NewRigidTransform(rot, r3.Vector{})

	inner := box{minX: math.Inf(-1), maxX: math.Inf(1), minY: math.Inf(-1), maxY: math.Inf(1)}
	outer := box{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
	for side, pts := range edges {
		ideal, err := idealPoints(pts, k, dist)
		if err != nil {
			return box{}, box{}, err
		}
		for _, p := range ideal {
			v := turn.Apply(r3.Vector{X: p.X, Y: p.Y, Z: 1})
			if v.Z <= 0 {
				return box{}, box{}, errors.New("image border turns behind the rectified camera")
			}
			x, y := v.X/v.Z, v.Y/v.Z
			outer.minX, outer.maxX = math.Min(outer.minX, x), math.Max(outer.maxX, x)
			outer.minY, outer.maxY = math.Min(outer.minY, y), math.Max(outer.maxY, y)
			switch side {
			case 0:
				inner.minX = math.Max(inner.minX, x)
			case 1:
				inner.maxX = math.Min(inner.maxX, x)
			case 2:
				inner.minY = math.Max(inner.minY, y)
			case 3:
				inner.maxY = math.Min(inner.maxY, y)
			}
		}
	}
	return inner, outer, nil
}
