package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EssentialFromExtrinsics returns E = [T]x R for the transform taking camera 1 coordinates to
// camera 2 coordinates.
func EssentialFromExtrinsics(rot mat.Matrix, t r3.Vector) *mat.Dense {
	var essMat mat.Dense
	essMat.Mul(getCrossProductMatFromPoint(t), rot)
	return &essMat
}

// FundamentalFromExtrinsics returns F = K2^-T [T]x R K1^-1 so that x2^T F x1 = 0 for matching
// pixels x1 in camera 1 and x2 in camera 2.
func FundamentalFromExtrinsics(k1, k2, rot mat.Matrix, t r3.Vector) (*mat.Dense, error) {
	var k1Inv, k2Inv mat.Dense
	if err := k1Inv.Inverse(k1); err != nil {
		return nil, errors.Wrap(err, "camera 1 matrix is not invertible")
	}
	if err := k2Inv.Inverse(k2); err != nil {
		return nil, errors.Wrap(err, "camera 2 matrix is not invertible")
	}
	var f mat.Dense
	f.Mul(k2Inv.T(), EssentialFromExtrinsics(rot, t))
	f.Mul(&f, &k1Inv)
	return &f, nil
}

// NormalizedDistance compares two matrices defined up to scale (and sign): both are scaled to unit
// Frobenius norm and the smaller of |a-b| and |a+b| is returned.
func NormalizedDistance(a, b mat.Matrix) float64 {
	na, nb := mat.Norm(a, 2), mat.Norm(b, 2)
	if na == 0 || nb == 0 {
		if na == nb {
			return 0
		}
		return math.Inf(1)
	}
	var as, bs, diff, sum mat.Dense
	as.Scale(1/na, a)
	bs.Scale(1/nb, b)
	diff.Sub(&as, &bs)
	sum.Add(&as, &bs)
	return math.Min(mat.Norm(&diff, 2), mat.Norm(&sum, 2))
}

// getCrossProductMatFromPoint returns the cross product with point p matrix.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}
