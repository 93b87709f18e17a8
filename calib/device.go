package calib

import (
	"image"

	"github.com/pkg/errors"
)

// FactoryParameters are set when the scanner is manufactured. Calibration never derives them;
// they come from a template record or from the caller.
type FactoryParameters struct {
	BaselineScale float64
	DepthScale    float64
	// CenterOffset is the projection center offset (dx, dy).
	CenterOffset image.Point
	// TiltOffset is the projector tilt and height offset.
	TiltOffset image.Point
}

// DefaultFactoryParameters are the values shipped on the reference unit.
func DefaultFactoryParameters() FactoryParameters {
	return FactoryParameters{
		BaselineScale: 11.6,
		DepthScale:    4.4,
		CenterOffset:  image.Point{X: 162, Y: 110},
		TiltOffset:    image.Point{X: 4, Y: -80},
	}
}

// Metadata is the device file footer. An empty string means the key is absent.
type Metadata struct {
	DevID         string
	CalibrateDate string
	Type          string
	SoftVersion   string
}

// DeviceCalibration is the full record stored in a scanner's configuration file.
//
// Records are treated as values: the With* methods return modified copies and never touch the
// receiver.
type DeviceCalibration struct {
	Resolution image.Point
	Factory    FactoryParameters
	Left       *CameraParameters
	Right      *CameraParameters
	Stereo     *StereoParameters

	// LeftReserved and RightReserved are the camera record fields past the twelve calibration
	// values, kept verbatim.
	LeftReserved  []string
	RightReserved []string
	// Projector is the raw projector record.
	Projector []string
	// LUT is the projector lookup table, opaque to calibration. Nil when absent.
	LUT      [][]float64
	Metadata Metadata
}

// NewDeviceCalibration assembles a fresh record from a calibration run. A nil stereo block is
// replaced by the placeholder.
func NewDeviceCalibration(
	resolution image.Point,
	factory FactoryParameters,
	left, right *CameraParameters,
	stereo *StereoParameters,
	meta Metadata,
) (*DeviceCalibration, error) {
	if left == nil || right == nil {
		return nil, errors.New("device calibration requires both cameras")
	}
	if resolution.X <= 0 || resolution.Y <= 0 {
		return nil, errors.Errorf("resolution must be positive, got %dx%d", resolution.X, resolution.Y)
	}
	if stereo == nil {
		var err error
		stereo, err = PlaceholderStereo(left, right, left.Size())
		if err != nil {
			return nil, err
		}
	}
	return &DeviceCalibration{
		Resolution: resolution,
		Factory:    factory,
		Left:       left,
		Right:      right,
		Stereo:     stereo,
		Metadata:   meta,
	}, nil
}

// Clone returns a deep copy. Camera and stereo values are immutable and shared.
func (d *DeviceCalibration) Clone() *DeviceCalibration {
	out := *d
	out.LeftReserved = cloneStrings(d.LeftReserved)
	out.RightReserved = cloneStrings(d.RightReserved)
	out.Projector = cloneStrings(d.Projector)
	if d.LUT != nil {
		out.LUT = make([][]float64, len(d.LUT))
		for i, row := range d.LUT {
			out.LUT[i] = append([]float64(nil), row...)
		}
	}
	return &out
}

// WithMetadata returns a copy with the footer replaced.
func (d *DeviceCalibration) WithMetadata(meta Metadata) *DeviceCalibration {
	out := d.Clone()
	out.Metadata = meta
	return out
}

// WithCameras returns a copy with new cameras and stereo block. Factory groups, reserved fields,
// the projector record, the LUT and metadata carry over. A nil stereo block becomes the
// placeholder.
func (d *DeviceCalibration) WithCameras(left, right *CameraParameters, stereo *StereoParameters) (*DeviceCalibration, error) {
	if left == nil || right == nil {
		return nil, errors.New("device calibration requires both cameras")
	}
	if stereo == nil {
		var err error
		stereo, err = PlaceholderStereo(left, right, left.Size())
		if err != nil {
			return nil, err
		}
	}
	out := d.Clone()
	out.Left = left
	out.Right = right
	out.Stereo = stereo
	return out, nil
}

// FromTemplate builds a record for a new calibration that keeps everything the calibration does
// not produce from template: factory groups, reserved fields, projector record, LUT and metadata.
func FromTemplate(template *DeviceCalibration, left, right *CameraParameters, stereo *StereoParameters) (*DeviceCalibration, error) {
	if template == nil {
		return nil, errors.New("template record is required")
	}
	return template.WithCameras(left, right, stereo)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
