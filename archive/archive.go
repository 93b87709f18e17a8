// Package archive stores named numeric arrays in a zip container so that calibration results can
// be saved between runs and exported later. Each entry holds one matrix in gonum's binary
// encoding.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

const entrySuffix = ".mat"

// An Archive is a keyed set of matrices. Vectors are stored as single row matrices and scalars
// as 1x1 matrices.
type Archive struct {
	arrays map[string]*mat.Dense
}

// New returns an empty Archive.
func New() *Archive {
	return &Archive{arrays: map[string]*mat.Dense{}}
}

// Set stores a copy of m under key.
func (a *Archive) Set(key string, m mat.Matrix) {
	a.arrays[key] = mat.DenseCopyOf(m)
}

// SetVector stores v as a 1xN matrix.
func (a *Archive) SetVector(key string, v []float64) {
	a.arrays[key] = mat.NewDense(1, len(v), append([]float64(nil), v...))
}

// SetScalar stores v as a 1x1 matrix.
func (a *Archive) SetScalar(key string, v float64) {
	a.arrays[key] = mat.NewDense(1, 1, []float64{v})
}

// Get returns a copy of the matrix under key.
func (a *Archive) Get(key string) (*mat.Dense, error) {
	m, ok := a.arrays[key]
	if !ok {
		return nil, errors.Errorf("archive has no %q entry", key)
	}
	return mat.DenseCopyOf(m), nil
}

// Vector returns the entry under key flattened in row order.
func (a *Archive) Vector(key string) ([]float64, error) {
	m, err := a.Get(key)
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out, nil
}

// Scalar returns the single value under key.
func (a *Archive) Scalar(key string) (float64, error) {
	m, err := a.Get(key)
	if err != nil {
		return 0, err
	}
	if r, c := m.Dims(); r != 1 || c != 1 {
		return 0, errors.Errorf("archive entry %q is %dx%d, expected a scalar", key, r, c)
	}
	return m.At(0, 0), nil
}

// Keys lists the entries in sorted order.
func (a *Archive) Keys() []string {
	keys := make([]string, 0, len(a.arrays))
	for k := range a.arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the archive to path.
func Save(path string, a *Archive) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create archive")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return Encode(f, a)
}

// Encode writes the archive as a zip stream.
func Encode(w io.Writer, a *Archive) (err error) {
	zw := zip.NewWriter(w)
	defer func() {
		err = multierr.Combine(err, zw.Close())
	}()
	for _, key := range a.Keys() {
		data, err := a.arrays[key].MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "cannot encode %q", key)
		}
		entry, err := zw.Create(key + entrySuffix)
		if err != nil {
			return err
		}
		if _, err := entry.Write(data); err != nil {
			return errors.Wrapf(err, "cannot write %q", key)
		}
	}
	return nil
}

// Load reads an archive written by Save. Entries with other names are ignored.
func Load(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open archive")
	}
	defer utils.UncheckedErrorFunc(zr.Close)

	a := New()
	for _, file := range zr.File {
		if !strings.HasSuffix(file.Name, entrySuffix) {
			continue
		}
		key := strings.TrimSuffix(file.Name, entrySuffix)
		m, err := readEntry(file)
		if err != nil {
			return nil, errors.Wrapf(err, "archive entry %q", key)
		}
		a.arrays[key] = m
	}
	return a, nil
}

func readEntry(file *zip.File) (*mat.Dense, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(rc.Close)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &m, nil
}
