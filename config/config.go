// Package config defines the job description read by the sealcalib command line tool.
package config

import (
	"fmt"
	"image"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/sealfile"
)

// A Job describes one export: where the calibration archive comes from, which device file it is
// merged into and where the result goes.
type Job struct {
	// Template is an existing device file whose factory values are kept. Optional.
	Template string `json:"template,omitempty"`
	// Archive is a stereo calibration archive.
	Archive string `json:"archive"`
	Output  string `json:"output"`
	Device  Device `json:"device,omitempty"`
	// Factory is used instead of a template. Optional.
	Factory *Factory `json:"factory,omitempty"`
	// Atomic writes the output through a temporary file.
	Atomic bool `json:"atomic,omitempty"`
}

// Device overrides values of the device file dialect.
type Device struct {
	DevID             string      `json:"dev_id,omitempty"`
	SoftVersion       string      `json:"soft_version,omitempty"`
	Resolution        *Resolution `json:"resolution,omitempty"`
	RecalibrationType string      `json:"recalibration_type,omitempty"`
}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Factory are the factory groups written when there is no template.
type Factory struct {
	BaselineScale float64 `json:"baseline_scale"`
	DepthScale    float64 `json:"depth_scale"`
	CenterOffset  [2]int  `json:"center_offset"`
	TiltOffset    [2]int  `json:"tilt_offset"`
}

// Validate ensures all parts of the job are valid.
func (j *Job) Validate(path string) error {
	var err error
	if j.Archive == "" {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "archive"))
	}
	if j.Output == "" {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "output"))
	}
	if j.Template != "" && j.Factory != nil {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.New("template and factory are mutually exclusive")))
	}
	if res := j.Device.Resolution; res != nil && (res.Width <= 0 || res.Height <= 0) {
		err = multierr.Append(err, utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "device"),
			errors.Errorf("resolution must be positive, got %dx%d", res.Width, res.Height)))
	}
	if f := j.Factory; f != nil && (f.BaselineScale <= 0 || f.DepthScale <= 0) {
		err = multierr.Append(err, utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "factory"),
			errors.New("baseline_scale and depth_scale must be positive")))
	}
	return err
}

// Format overlays the configured device values on sealfile.DefaultFormat.
func (j *Job) Format() sealfile.Format {
	format := sealfile.DefaultFormat()
	if j.Device.Resolution != nil {
		format.Resolution = image.Point{X: j.Device.Resolution.Width, Y: j.Device.Resolution.Height}
	}
	if j.Device.RecalibrationType != "" {
		format.RecalibrationType = j.Device.RecalibrationType
	}
	return format
}

// Metadata is the footer requested for the output. Empty values fall back to the template or
// the format defaults.
func (j *Job) Metadata() calib.Metadata {
	return calib.Metadata{DevID: j.Device.DevID, SoftVersion: j.Device.SoftVersion}
}

// FactoryParameters returns the configured factory groups or the reference defaults.
func (j *Job) FactoryParameters() calib.FactoryParameters {
	if j.Factory == nil {
		return calib.DefaultFactoryParameters()
	}
	return calib.FactoryParameters{
		BaselineScale: j.Factory.BaselineScale,
		DepthScale:    j.Factory.DepthScale,
		CenterOffset:  image.Point{X: j.Factory.CenterOffset[0], Y: j.Factory.CenterOffset[1]},
		TiltOffset:    image.Point{X: j.Factory.TiltOffset[0], Y: j.Factory.TiltOffset[1]},
	}
}

// Schema describes the job file.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Job{})
}
