package calibrate

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ImagePair is a left and right capture of the same target placement.
type ImagePair struct {
	Left  string
	Right string
}

// Naming conventions for stereo captures, tried in order. The first one matching any file wins.
var pairNamePatterns = []string{
	"*_%s.png",
	"*_%s.jpg",
	"%s_*.png",
	"%s_*.jpg",
	"gray_%s_*.png",
	"gray_%s_*.jpg",
}

// FindImagePairs lists the stereo captures in dir. Left and right files are sorted by name and
// paired in order; differing counts or names that do not correspond are a MismatchedPairError.
func FindImagePairs(dir string) ([]ImagePair, error) {
	left, leftPattern, err := globFirst(dir, "left")
	if err != nil {
		return nil, err
	}
	right, rightPattern, err := globFirst(dir, "right")
	if err != nil {
		return nil, err
	}
	if len(left) == 0 || len(right) == 0 {
		return nil, errors.Errorf("no image pairs found in %q", dir)
	}
	if len(left) != len(right) {
		return nil, &MismatchedPairError{Left: len(left), Right: len(right), Detail: "image counts differ in " + dir}
	}

	leftStems := lo.Map(left, func(path string, _ int) string { return pairStem(path, leftPattern) })
	rightStems := lo.Map(right, func(path string, _ int) string { return pairStem(path, rightPattern) })
	for i := range leftStems {
		if leftStems[i] != rightStems[i] {
			return nil, &MismatchedPairError{
				Left: len(left), Right: len(right),
				Detail: "pair " + filepath.Base(left[i]) + " / " + filepath.Base(right[i]) + " does not correspond",
			}
		}
	}
	return lo.Map(left, func(path string, i int) ImagePair {
		return ImagePair{Left: path, Right: right[i]}
	}), nil
}

func globFirst(dir, side string) ([]string, string, error) {
	for _, p := range pairNamePatterns {
		pattern := strings.ReplaceAll(p, "%s", side)
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, "", errors.Wrapf(err, "bad image pattern %q", pattern)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches, pattern, nil
		}
	}
	return nil, "", nil
}

// pairStem strips the naming pattern so that left and right names can be compared.
func pairStem(path, pattern string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	prefix, suffix, _ := strings.Cut(strings.TrimSuffix(pattern, filepath.Ext(pattern)), "*")
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
}
