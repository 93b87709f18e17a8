package transform

import "github.com/pkg/errors"

// BrownConrady is the standard radial-tangential lens model.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes coefficients in calibration order (k1 k2 p1 p2 k3). Missing trailing
// values are filled with zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > BrownConradyCoefficients {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", BrownConradyCoefficients, len(inp))
	}
	padded := make([]float64, BrownConradyCoefficients)
	copy(padded, inp)
	return &BrownConrady{
		RadialK1:     padded[0],
		RadialK2:     padded[1],
		TangentialP1: padded[2],
		TangentialP2: padded[3],
		RadialK3:     padded[4],
	}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in calibration order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// Transform distorts normalized image coordinates.
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	return distort(x, y, bc.RadialK1, bc.RadialK2, bc.RadialK3, 0, 0, 0, bc.TangentialP1, bc.TangentialP2)
}

// Rational is the eight coefficient lens model with a rational radial term:
//
//	radial = (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶)
type Rational struct {
	BrownConrady
	RadialK4 float64 `json:"rk4"`
	RadialK5 float64 `json:"rk5"`
	RadialK6 float64 `json:"rk6"`
}

// NewRational takes coefficients in calibration order (k1 k2 p1 p2 k3 k4 k5 k6). Missing trailing
// values are filled with zero.
func NewRational(inp []float64) (*Rational, error) {
	if len(inp) > RationalCoefficients {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", RationalCoefficients, len(inp))
	}
	padded := make([]float64, RationalCoefficients)
	copy(padded, inp)
	bc, err := NewBrownConrady(padded[:BrownConradyCoefficients])
	if err != nil {
		return nil, err
	}
	return &Rational{
		BrownConrady: *bc,
		RadialK4:     padded[5],
		RadialK5:     padded[6],
		RadialK6:     padded[7],
	}, nil
}

// CheckValid checks if the fields for Rational have valid inputs.
func (r *Rational) CheckValid() error {
	if r == nil {
		return InvalidDistortionError("Rational shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (r *Rational) ModelType() DistortionType {
	return RationalDistortionType
}

// Parameters returns the coefficients in calibration order.
func (r *Rational) Parameters() []float64 {
	if r == nil {
		return []float64{}
	}
	return append(r.BrownConrady.Parameters(), r.RadialK4, r.RadialK5, r.RadialK6)
}

// Transform distorts normalized image coordinates.
func (r *Rational) Transform(x, y float64) (float64, float64) {
	if r == nil {
		return x, y
	}
	return distort(x, y,
		r.RadialK1, r.RadialK2, r.RadialK3,
		r.RadialK4, r.RadialK5, r.RadialK6,
		r.TangentialP1, r.TangentialP2)
}

func distort(x, y, k1, k2, k3, k4, k5, k6, p1, p2 float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + k1*r2 + k2*r4 + k3*r6) / (1 + k4*r2 + k5*r4 + k6*r6)
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + 2*p2*x*y + p1*(r2+2*y*y)
	return xd, yd
}
