//go:build opencv

// Package gocvdetect finds calibration targets with OpenCV.
package gocvdetect

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/seal3d/sealcalib/calibrate"
)

// Available reports whether the binary was built with OpenCV.
const Available = true

var (
	subPixWindow   = image.Pt(11, 11)
	subPixZeroZone = image.Pt(-1, -1)
)

// Chessboard detects the inner corners of a chessboard with dims (cols, rows) and refines them to
// sub-pixel accuracy.
type Chessboard struct {
	dims image.Point
}

// NewChessboard returns a detector for the given pattern.
func NewChessboard(pattern calibrate.Pattern) (calibrate.Detector, error) {
	dims := pattern.Dims()
	if dims.X < 2 || dims.Y < 2 {
		return nil, errors.Errorf("chessboard needs at least 2x2 inner corners, got %dx%d", dims.X, dims.Y)
	}
	return &Chessboard{dims: dims}, nil
}

// Detect implements calibrate.Detector.
func (c *Chessboard) Detect(img *image.Gray) (bool, []r2.Point, error) {
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return false, nil, err
	}
	defer src.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	if !gocv.FindChessboardCorners(src, c.dims, &corners, gocv.CalibCBAdaptiveThresh|gocv.CalibCBNormalizeImage) {
		return false, nil, nil
	}
	criteria := calibrate.DefaultTermCriteria()
	gocv.CornerSubPix(src, &corners, subPixWindow, subPixZeroZone,
		gocv.NewTermCriteria(gocv.Count|gocv.EPS, criteria.MaxIter, criteria.Epsilon))

	pts := make([]r2.Point, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		pts = append(pts, r2.Point{X: float64(v[0]), Y: float64(v[1])})
	}
	return true, pts, nil
}
