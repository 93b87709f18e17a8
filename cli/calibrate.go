package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/seal3d/sealcalib/archive"
	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/validate"
)

// rectifiedBaselineTolerance is the largest accepted gap, in millimeters, between the calibrated
// baseline and the one read back from the rectified projections.
const rectifiedBaselineTolerance = 0.01

// collect detects the chessboard described by the pattern flags in every pair of the directory
// argument.
func (r *runner) collect(c *cli.Context) (calibrate.StereoCorrespondences, int, error) {
	pattern := calibrate.Chessboard{
		Rows:       c.Int(flagRows),
		Cols:       c.Int(flagCols),
		SquareSize: c.Float64(flagSquareSize),
	}
	detector, err := r.newDetector(pattern)
	if err != nil {
		return calibrate.StereoCorrespondences{}, 0, err
	}
	pairs, err := calibrate.FindImagePairs(c.Args().First())
	if err != nil {
		return calibrate.StereoCorrespondences{}, 0, err
	}
	corr, err := calibrate.NewCollector(pattern, detector, r.logger).Collect(pairs)
	if err != nil {
		return calibrate.StereoCorrespondences{}, 0, err
	}
	return corr, len(pairs), nil
}

func (r *runner) collectAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("collect takes exactly one image directory")
	}
	corr, pairs, err := r.collect(c)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Camera", "Views", "Coverage"})
	leftCoverage, err := validate.Coverage(corr.Left, corr.Size, validate.DefaultGrid)
	if err != nil {
		return err
	}
	rightCoverage, err := validate.Coverage(corr.Right, corr.Size, validate.DefaultGrid)
	if err != nil {
		return err
	}
	t.AppendRow(table.Row{"left", len(corr.Left), fmt.Sprintf("%.0f%%", leftCoverage*100)})
	t.AppendRow(table.Row{"right", len(corr.Right), fmt.Sprintf("%.0f%%", rightCoverage*100)})
	printf(c.App.Writer, "%d of %d pairs usable at %dx%d", len(corr.Object), pairs, corr.Size.X, corr.Size.Y)
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func (r *runner) calibrateAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("calibrate takes exactly one image directory")
	}
	output := c.String(flagOutput)
	corr, pairs, err := r.collect(c)
	if err != nil {
		return err
	}
	r.logger.Infow("correspondences collected", "usable", len(corr.Object), "pairs", pairs)

	calibrator := calibrate.NewCalibrator(r.newEngine(r.logger), r.logger)
	res, err := calibrator.Calibrate(corr)
	if err != nil {
		return err
	}
	rect, err := calibrator.Rectify(res.Stereo, c.Float64(flagAlpha))
	if err != nil {
		return err
	}
	check, err := validate.CheckRectification(res.Stereo, rect.P1, rect.P2)
	if err != nil {
		return err
	}

	a, err := archive.FromResult(res, &rect)
	if err != nil {
		return err
	}
	if err := archive.Save(output, a); err != nil {
		return err
	}
	r.logger.Infow("calibration archive written", "path", output, "rms", res.Stereo.RMS())

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"left rms", fmt.Sprintf("%.4f px (%s)", res.Left.RMS(), validate.Quality(res.Left.RMS()))})
	t.AppendRow(table.Row{"right rms", fmt.Sprintf("%.4f px (%s)", res.Right.RMS(), validate.Quality(res.Right.RMS()))})
	t.AppendRow(table.Row{"stereo rms", fmt.Sprintf("%.4f px (%s)", res.Stereo.RMS(), validate.Quality(res.Stereo.RMS()))})
	t.AppendRow(table.Row{"baseline", fmt.Sprintf("%.3f mm", check.Baseline)})
	t.AppendRow(table.Row{"rectified baseline", fmt.Sprintf("%.3f mm", check.RectifiedBaseline)})
	printf(c.App.Writer, "%d of %d pairs usable at %dx%d", len(corr.Object), pairs, corr.Size.X, corr.Size.Y)
	printf(c.App.Writer, "%s", t.Render())
	if check.Difference > rectifiedBaselineTolerance {
		warningf(c.App.ErrWriter, "rectified baseline %.3f mm differs from the calibrated %.3f mm",
			check.RectifiedBaseline, check.Baseline)
	}
	printf(c.App.Writer, "wrote %s", output)
	return nil
}
