package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/seal3d/sealcalib/archive"
	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/config"
	"github.com/seal3d/sealcalib/sealfile"
	"github.com/seal3d/sealcalib/utils"
)

const outputPerm = 0o644

func (r *runner) inspectAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("inspect takes exactly one device file")
	}
	codec := sealfile.NewCodec(sealfile.DefaultFormat(), r.clock, r.logger)
	rec, err := codec.Load(c.Args().First())
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", deviceTable(rec))
	return nil
}

func deviceTable(rec *calib.DeviceCalibration) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Left", "Right"})
	t.AppendRow(table.Row{"resolution", fmt.Sprintf("%dx%d", rec.Resolution.X, rec.Resolution.Y), ""})
	t.AppendRow(table.Row{"baseline / depth scale", rec.Factory.BaselineScale, rec.Factory.DepthScale})
	t.AppendRow(table.Row{"center offset", rec.Factory.CenterOffset.X, rec.Factory.CenterOffset.Y})
	t.AppendRow(table.Row{"tilt offset", rec.Factory.TiltOffset.X, rec.Factory.TiltOffset.Y})
	t.AppendSeparator()
	for _, row := range []struct {
		name string
		get  func(*calib.CameraParameters) float64
	}{
		{"fx", (*calib.CameraParameters).Fx},
		{"fy", (*calib.CameraParameters).Fy},
		{"cx", (*calib.CameraParameters).Cx},
		{"cy", (*calib.CameraParameters).Cy},
		{"k1", (*calib.CameraParameters).K1},
		{"k2", (*calib.CameraParameters).K2},
		{"p1", (*calib.CameraParameters).P1},
		{"p2", (*calib.CameraParameters).P2},
		{"k3", (*calib.CameraParameters).K3},
		{"k4", (*calib.CameraParameters).K4},
		{"k5", (*calib.CameraParameters).K5},
		{"k6", (*calib.CameraParameters).K6},
	} {
		t.AppendRow(table.Row{row.name, fmt.Sprintf("%.6f", row.get(rec.Left)), fmt.Sprintf("%.6f", row.get(rec.Right))})
	}
	t.AppendRow(table.Row{"reserved", strings.Join(rec.LeftReserved, " "), strings.Join(rec.RightReserved, " ")})
	t.AppendSeparator()
	t.AppendRow(table.Row{"projector fields", len(rec.Projector), ""})
	t.AppendRow(table.Row{"lookup table rows", len(rec.LUT), ""})
	t.AppendRow(table.Row{"device id", rec.Metadata.DevID, ""})
	t.AppendRow(table.Row{"calibrated", rec.Metadata.CalibrateDate, ""})
	t.AppendRow(table.Row{"type", rec.Metadata.Type, ""})
	t.AppendRow(table.Row{"software", rec.Metadata.SoftVersion, ""})
	return t.Render()
}

func (r *runner) exportAction(c *cli.Context) error {
	job, err := exportJob(c)
	if err != nil {
		return err
	}

	a, err := archive.Load(job.Archive)
	if err != nil {
		return err
	}
	stereo, err := archive.ToStereo(a)
	if err != nil {
		return errors.Wrapf(err, "cannot read stereo calibration from %q", job.Archive)
	}
	left, right, err := camerasFromStereo(stereo)
	if err != nil {
		return err
	}

	format := job.Format()
	rec, err := calib.NewDeviceCalibration(format.Resolution, job.FactoryParameters(), left, right, stereo, job.Metadata())
	if err != nil {
		return err
	}
	codec := sealfile.NewCodec(format, r.clock, r.logger)

	var buf bytes.Buffer
	if job.Template != "" {
		//nolint:gosec
		template, err := os.ReadFile(job.Template)
		if err != nil {
			return errors.Wrap(err, "cannot read template")
		}
		if err := codec.Merge(rec, bytes.NewReader(template), &buf); err != nil {
			return errors.Wrapf(err, "cannot merge into %q", job.Template)
		}
		if err := codec.VerifyMerge(bytes.NewReader(template), bytes.NewReader(buf.Bytes())); err != nil {
			return errors.Wrap(err, "merged file failed verification")
		}
	} else {
		if err := codec.Encode(rec, &buf); err != nil {
			return err
		}
		if n := bytes.Count(buf.Bytes(), []byte("\n")); n < format.MinLines {
			warningf(c.App.ErrWriter, "%s has %d lines; device parsers expect at least %d", job.Output, n, format.MinLines)
		}
	}

	if job.Atomic {
		err = utils.AtomicWriteFile(job.Output, outputPerm, func(f *os.File) error {
			_, err := buf.WriteTo(f)
			return err
		})
	} else {
		err = os.WriteFile(job.Output, buf.Bytes(), outputPerm)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot write %q", job.Output)
	}
	r.logger.Debugw("device file written", "output", job.Output, "template", job.Template, "bytes", buf.Len())
	printf(c.App.Writer, "wrote %s (stereo rms %.4f, baseline %.3f)", job.Output, stereo.RMS(), stereo.Baseline())
	return nil
}

// exportJob reads the job from --config or assembles it from flags.
func exportJob(c *cli.Context) (*config.Job, error) {
	if path := c.String(flagConfig); path != "" {
		return config.Read(path)
	}
	job := &config.Job{
		Template: c.String(flagTemplate),
		Archive:  c.String(flagArchive),
		Output:   c.String(flagOutput),
		Atomic:   c.Bool(flagAtomic),
		Device: config.Device{
			DevID:       c.String(flagDevID),
			SoftVersion: c.String(flagSoftVersion),
		},
	}
	if err := job.Validate("flags"); err != nil {
		return nil, err
	}
	return job, nil
}

// camerasFromStereo takes each camera's intrinsics and eight coefficient distortion from the stereo
// block. Archives keep no single-camera rms, so the stereo rms is used for both.
func camerasFromStereo(stereo *calib.StereoParameters) (*calib.CameraParameters, *calib.CameraParameters, error) {
	left, err := calib.NewCameraParameters(stereo.LeftK(), stereo.LeftDistortion(), stereo.Size(), stereo.RMS(), nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "left camera")
	}
	right, err := calib.NewCameraParameters(stereo.RightK(), stereo.RightDistortion(), stereo.Size(), stereo.RMS(), nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "right camera")
	}
	return left, right, nil
}

func (r *runner) verifyAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("verify takes a template and an output file")
	}
	templatePath, outputPath := c.Args().Get(0), c.Args().Get(1)
	//nolint:gosec
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return err
	}
	//nolint:gosec
	output, err := os.ReadFile(outputPath)
	if err != nil {
		return err
	}
	codec := sealfile.NewCodec(sealfile.DefaultFormat(), r.clock, r.logger)
	if err := codec.VerifyMerge(bytes.NewReader(template), bytes.NewReader(output)); err != nil {
		warningf(c.App.ErrWriter, "%s does not match %s", outputPath, templatePath)
		printf(c.App.Writer, "%s", sealfile.Diff(string(template), string(output)))
		return err
	}
	printf(c.App.Writer, "%s keeps every protected line of %s", outputPath, templatePath)
	return nil
}

func schemaAction(c *cli.Context) error {
	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}
