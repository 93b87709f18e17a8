//go:build !opencv

package cvengine

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/seal3d/sealcalib/calibrate"
)

// Available reports whether single camera calibration is compiled in.
const Available = false

// CalibrateSingle fails unless the binary is built with the opencv tag.
func (e *Engine) CalibrateSingle(
	obj [][]r3.Vector,
	img [][]r2.Point,
	size image.Point,
	flags calibrate.Flag,
	criteria calibrate.TermCriteria,
) (calibrate.SingleResult, error) {
	return calibrate.SingleResult{}, errors.New("single camera calibration requires a build with -tags opencv")
}
