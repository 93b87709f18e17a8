// Package utils holds small file helpers shared by the command line tools and tests.
package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// AtomicWriteFile calls write with a temporary file in the directory of path and renames it over
// path once write and the close succeed. On any failure path is left untouched.
func AtomicWriteFile(path string, perm os.FileMode, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "cannot create temporary file")
	}
	defer func() {
		if err != nil {
			RemoveFileNoError(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return multierr.Combine(err, tmp.Close())
	}
	if err := tmp.Chmod(perm); err != nil {
		return multierr.Combine(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "cannot replace %q", path)
}
