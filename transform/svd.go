package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RankTolerance is the relative singular value threshold used by Rank.
const RankTolerance = 1e-7

// SingularValues returns the singular values of m in decreasing order.
func SingularValues(m mat.Matrix) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	return svd.Values(nil), nil
}

// Rank counts singular values above tol times the largest one. A zero matrix has rank 0.
func Rank(m mat.Matrix, tol float64) (int, error) {
	values, err := SingularValues(m)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 || values[0] == 0 {
		return 0, nil
	}
	rank := 0
	for _, v := range values {
		if v > tol*values[0] {
			rank++
		}
	}
	return rank, nil
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Identity returns a new nxn identity matrix.
func Identity(n int) *mat.Dense {
	return eye(n)
}
