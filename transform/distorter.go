package transform

import (
	"fmt"

	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is the standard five coefficient lens model (k1 k2 p1 p2 k3).
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// RationalDistortionType extends Brown-Conrady with a rational radial denominator (k4 k5 k6).
	RationalDistortionType = DistortionType("rational")
)

// Coefficient counts of the supported models.
const (
	BrownConradyCoefficients = 5
	RationalCoefficients     = 8
)

// Distorter maps undistorted normalized image coordinates to distorted ones. Parameters come
// back in calibration order: k1 k2 p1 p2 k3 [k4 k5 k6].
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// ErrInvalidDistortion is wrapped by every coefficient validation failure.
var ErrInvalidDistortion = errors.New("invalid distortion coefficients")

// InvalidDistortionError wraps ErrInvalidDistortion with a reason.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidDistortion, msg)
}

var distorterConstructors = map[DistortionType]func([]float64) (Distorter, error){
	BrownConradyDistortionType: func(p []float64) (Distorter, error) {
		bc, err := NewBrownConrady(p)
		if err != nil {
			return nil, err
		}
		return bc, nil
	},
	RationalDistortionType: func(p []float64) (Distorter, error) {
		r, err := NewRational(p)
		if err != nil {
			return nil, err
		}
		return r, nil
	},
}

// NewDistorter builds the named model.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	newDistorter, ok := distorterConstructors[distortionType]
	if !ok {
		return nil, errors.Errorf("unknown distortion model %q", distortionType)
	}
	return newDistorter(parameters)
}

// NewDistorterFromCoefficients picks the model from the length of a calibration coefficient vector.
func NewDistorterFromCoefficients(coefficients []float64) (Distorter, error) {
	switch len(coefficients) {
	case BrownConradyCoefficients:
		return NewDistorter(BrownConradyDistortionType, coefficients)
	case RationalCoefficients:
		return NewDistorter(RationalDistortionType, coefficients)
	default:
		return nil, InvalidDistortionError(fmt.Sprintf("expected %d or %d coefficients, got %d",
			BrownConradyCoefficients, RationalCoefficients, len(coefficients)))
	}
}
