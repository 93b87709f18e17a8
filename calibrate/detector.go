package calibrate

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/seal3d/sealcalib/logging"
)

// A Detector finds a calibration pattern in a grayscale image.
type Detector interface {
	Detect(img *image.Gray) (bool, []r2.Point, error)
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc func(img *image.Gray) (bool, []r2.Point, error)

// Detect calls f.
func (f DetectorFunc) Detect(img *image.Gray) (bool, []r2.Point, error) {
	return f(img)
}

// SafeDetect runs the detector and reports any error or panic as "not found", so one bad frame
// never aborts a capture.
func SafeDetect(d Detector, img *image.Gray, logger logging.Logger) (found bool, pts []r2.Point) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("pattern detector panicked", "error", errors.Errorf("%v", r))
			found, pts = false, nil
		}
	}()
	found, pts, err := d.Detect(img)
	if err != nil {
		logger.Warnw("pattern detection failed", "error", err)
		return false, nil
	}
	if !found {
		return false, nil
	}
	return true, pts
}

// A MarkerDetector finds a marker-indexed pattern such as a ChArUco board. Parts of the board may
// be hidden, so it reports the id of every point it returns.
type MarkerDetector interface {
	DetectMarkers(img *image.Gray) (bool, []r2.Point, []int, error)
}

// MarkerDetectorFunc adapts a function to a MarkerDetector.
type MarkerDetectorFunc func(img *image.Gray) (bool, []r2.Point, []int, error)

// DetectMarkers calls f.
func (f MarkerDetectorFunc) DetectMarkers(img *image.Gray) (bool, []r2.Point, []int, error) {
	return f(img)
}

// SafeDetectMarkers is SafeDetect for marker detectors. A result whose ids do not line up with its
// points is also treated as not found.
func SafeDetectMarkers(d MarkerDetector, img *image.Gray, logger logging.Logger) (found bool, pts []r2.Point, ids []int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("marker detector panicked", "error", errors.Errorf("%v", r))
			found, pts, ids = false, nil, nil
		}
	}()
	found, pts, ids, err := d.DetectMarkers(img)
	if err != nil {
		logger.Warnw("marker detection failed", "error", err)
		return false, nil, nil
	}
	if !found {
		return false, nil, nil
	}
	if len(pts) != len(ids) {
		logger.Warnw("marker detector returned mismatched ids", "points", len(pts), "ids", len(ids))
		return false, nil, nil
	}
	return true, pts, ids
}
