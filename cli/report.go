package cli

import (
	"fmt"
	"image"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/seal3d/sealcalib/archive"
	"github.com/seal3d/sealcalib/validate"
)

func (r *runner) reportAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("report takes exactly one archive")
	}
	var resolution image.Point
	if res := c.String(flagResolution); res != "" {
		if _, err := fmt.Sscanf(res, "%dx%d", &resolution.X, &resolution.Y); err != nil {
			return errors.Wrapf(err, "cannot parse resolution %q", res)
		}
	}

	a, err := archive.Load(c.Args().First())
	if err != nil {
		return err
	}
	stereo, err := archive.ToStereo(a)
	if err != nil {
		return err
	}
	report, err := validate.NewReport(validate.ReportInput{Stereo: stereo, Resolution: resolution})
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", reportTable(report))
	if !report.FundamentalValid {
		warningf(c.App.ErrWriter, "fundamental matrix has rank %d, expected %d",
			report.FundamentalRank, validate.ExpectedFundamentalRank)
	}
	if report.ResolutionMismatch {
		warningf(c.App.ErrWriter, "calibrated at %dx%d but the device runs at %dx%d",
			report.ImageSize.X, report.ImageSize.Y, report.Resolution.X, report.Resolution.Y)
	}
	return nil
}

func reportTable(report *validate.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"stereo rms", fmt.Sprintf("%.4f px (%s)", report.StereoRMS, report.StereoQuality)})
	t.AppendRow(table.Row{"fundamental rank", report.FundamentalRank})
	if !math.IsNaN(report.FundamentalConsistency) {
		t.AppendRow(table.Row{"fundamental consistency", fmt.Sprintf("%.2e", report.FundamentalConsistency)})
	}
	t.AppendRow(table.Row{"baseline", fmt.Sprintf("%.3f mm", report.Baseline)})
	t.AppendRow(table.Row{"translation", fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f",
		report.Translation.X, report.Translation.Y, report.Translation.Z)})
	t.AppendRow(table.Row{"rotation", fmt.Sprintf("Pitch:%.3f, Yaw:%.3f, Roll:%.3f",
		radToDeg(report.Euler.Pitch), radToDeg(report.Euler.Yaw), radToDeg(report.Euler.Roll))})
	t.AppendRow(table.Row{"image size", fmt.Sprintf("%dx%d", report.ImageSize.X, report.ImageSize.Y)})
	return t.Render()
}

func radToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
