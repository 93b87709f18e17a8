//go:build !opencv

// Package gocvdetect finds calibration targets with OpenCV.
package gocvdetect

import (
	"github.com/pkg/errors"

	"github.com/seal3d/sealcalib/calibrate"
)

// Available reports whether the binary was built with OpenCV.
const Available = false

// NewChessboard fails unless the binary is built with the opencv tag.
func NewChessboard(pattern calibrate.Pattern) (calibrate.Detector, error) {
	return nil, errors.New("chessboard detection requires a build with -tags opencv")
}
