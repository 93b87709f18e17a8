package calibrate

import "fmt"

// InsufficientDataError is returned when a calibration call has fewer usable correspondence sets
// than it needs. Capturing more views fixes it.
type InsufficientDataError struct {
	Stage string
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: %d valid correspondence sets, need at least %d", e.Stage, e.Have, e.Need)
}

// CalibrationError is returned when the engine fails or produces a degenerate result.
type CalibrationError struct {
	Stage      string
	Diagnostic string
	Err        error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%s: calibration failed: %s", e.Stage, e.Diagnostic)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}

// MismatchedPairError is returned when left and right inputs cannot be paired one to one.
type MismatchedPairError struct {
	Left   int
	Right  int
	Detail string
}

func (e *MismatchedPairError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("mismatched left/right inputs: %d left vs %d right", e.Left, e.Right)
	}
	return fmt.Sprintf("mismatched left/right inputs: %d left vs %d right: %s", e.Left, e.Right, e.Detail)
}

func newCalibrationError(stage string, err error) error {
	return &CalibrationError{Stage: stage, Diagnostic: err.Error(), Err: err}
}
