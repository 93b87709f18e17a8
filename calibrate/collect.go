package calibrate

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/seal3d/sealcalib/logging"
)

// MinMarkerCorners is the fewest shared corners a marker-indexed view needs to be kept.
const MinMarkerCorners = 6

// A Collector turns stereo image pairs into correspondences by detecting a pattern in both
// images of each pair.
type Collector struct {
	pattern  Pattern
	detector Detector

	indexed IndexedPattern
	markers MarkerDetector

	logger logging.Logger
}

// NewCollector returns a Collector for a pattern that is either found whole or not at all.
func NewCollector(pattern Pattern, detector Detector, logger logging.Logger) *Collector {
	return &Collector{pattern: pattern, detector: detector, logger: logger}
}

// NewMarkerCollector returns a Collector for a marker-indexed pattern. A pair is kept when both
// images share at least MinMarkerCorners corner ids, and only the shared corners are used.
func NewMarkerCollector(pattern IndexedPattern, detector MarkerDetector, logger logging.Logger) *Collector {
	return &Collector{pattern: pattern, indexed: pattern, markers: detector, logger: logger}
}

// Collect loads every pair and keeps those where the pattern is found in both images. All images
// must share one size; a disagreement is a MismatchedPairError. Fewer than MinCorrespondenceSets
// usable pairs is an InsufficientDataError.
func (c *Collector) Collect(pairs []ImagePair) (StereoCorrespondences, error) {
	var corr StereoCorrespondences

	for i, pair := range pairs {
		left, err := loadGray(pair.Left)
		if err != nil {
			return StereoCorrespondences{}, err
		}
		right, err := loadGray(pair.Right)
		if err != nil {
			return StereoCorrespondences{}, err
		}
		leftSize, rightSize := left.Bounds().Size(), right.Bounds().Size()
		if leftSize != rightSize {
			return StereoCorrespondences{}, &MismatchedPairError{
				Left: 1, Right: 1,
				Detail: "image sizes differ: " + leftSize.String() + " vs " + rightSize.String() + " for " + pair.Left,
			}
		}
		if corr.Size == (image.Point{}) {
			corr.Size = leftSize
		} else if corr.Size != leftSize {
			return StereoCorrespondences{}, &MismatchedPairError{
				Left: len(pairs), Right: len(pairs),
				Detail: "image size " + leftSize.String() + " of " + pair.Left + " differs from " + corr.Size.String(),
			}
		}

		obj, ptsLeft, ptsRight := c.detectPair(left, right)
		if obj == nil {
			c.logger.Infow("pattern not found in pair", "index", i, "left", pair.Left, "right", pair.Right)
			continue
		}
		c.logger.Debugw("pattern found in pair", "index", i, "points", len(obj), "pattern", c.pattern.Dims())
		corr.Object = append(corr.Object, obj)
		corr.Left = append(corr.Left, ptsLeft)
		corr.Right = append(corr.Right, ptsRight)
	}

	total := lo.SumBy(corr.Object, func(set []r3.Vector) int { return len(set) })
	c.logger.Infow("collected correspondences", "pairs", len(pairs), "usable", len(corr.Object), "points", total)
	if len(corr.Object) < MinCorrespondenceSets {
		return StereoCorrespondences{}, &InsufficientDataError{Stage: StageCollect, Have: len(corr.Object), Need: MinCorrespondenceSets}
	}
	return corr, nil
}

// detectPair returns nil object points when the pair is unusable.
func (c *Collector) detectPair(left, right *image.Gray) ([]r3.Vector, []r2.Point, []r2.Point) {
	if c.markers != nil {
		return c.detectMarkerPair(left, right)
	}
	objectPoints := c.pattern.ObjectPoints()
	foundLeft, ptsLeft := SafeDetect(c.detector, left, c.logger)
	foundRight, ptsRight := SafeDetect(c.detector, right, c.logger)
	if !foundLeft || !foundRight || len(ptsLeft) != len(objectPoints) || len(ptsRight) != len(objectPoints) {
		return nil, nil, nil
	}
	return append([]r3.Vector(nil), objectPoints...), ptsLeft, ptsRight
}

func (c *Collector) detectMarkerPair(left, right *image.Gray) ([]r3.Vector, []r2.Point, []r2.Point) {
	foundLeft, ptsLeft, idsLeft := SafeDetectMarkers(c.markers, left, c.logger)
	foundRight, ptsRight, idsRight := SafeDetectMarkers(c.markers, right, c.logger)
	if !foundLeft || !foundRight {
		return nil, nil, nil
	}
	rightByID := make(map[int]r2.Point, len(idsRight))
	for i, id := range idsRight {
		rightByID[id] = ptsRight[i]
	}
	var ids []int
	var sharedLeft, sharedRight []r2.Point
	for i, id := range idsLeft {
		if p, ok := rightByID[id]; ok && !lo.Contains(ids, id) {
			ids = append(ids, id)
			sharedLeft = append(sharedLeft, ptsLeft[i])
			sharedRight = append(sharedRight, p)
		}
	}
	if len(ids) < MinMarkerCorners {
		c.logger.Debugw("too few shared corners", "shared", len(ids), "need", MinMarkerCorners)
		return nil, nil, nil
	}
	obj, err := c.indexed.ObjectPointsFor(ids)
	if err != nil {
		c.logger.Warnw("dropping pair with unusable corner ids", "error", err)
		return nil, nil, nil
	}
	return obj, sharedLeft, sharedRight
}

func loadGray(path string) (*image.Gray, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load image %q", path)
	}
	nrgba := imaging.Grayscale(img)
	gray := image.NewGray(nrgba.Bounds())
	draw.Draw(gray, gray.Bounds(), nrgba, nrgba.Bounds().Min, draw.Src)
	return gray, nil
}
