// Package cli contains the sealcalib command line application.
package cli

import (
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"

	"github.com/seal3d/sealcalib/calibrate"
	"github.com/seal3d/sealcalib/calibrate/cvengine"
	"github.com/seal3d/sealcalib/calibrate/gocvdetect"
	"github.com/seal3d/sealcalib/logging"
)

const (
	flagDebug       = "debug"
	flagLogFile     = "log-file"
	flagConfig      = "config"
	flagArchive     = "archive"
	flagTemplate    = "template"
	flagOutput      = "output"
	flagDevID       = "dev-id"
	flagSoftVersion = "soft-version"
	flagAtomic      = "atomic"
	flagResolution  = "resolution"
	flagRows        = "rows"
	flagCols        = "cols"
	flagSquareSize  = "square-size"
	flagAlpha       = "alpha"
)

// runner holds what the actions share. The logger is set up in Before.
type runner struct {
	clock       clock.Clock
	logger      logging.Logger
	logFile     *logging.FileAppender
	newEngine   func(logging.Logger) calibrate.Engine
	newDetector func(calibrate.Pattern) (calibrate.Detector, error)
}

func newEngine(logger logging.Logger) calibrate.Engine {
	return cvengine.NewEngine(logger)
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return newApp(out, errOut, clock.New())
}

func newApp(out, errOut io.Writer, clk clock.Clock, opts ...func(*runner)) *cli.App {
	r := &runner{clock: clk, newEngine: newEngine, newDetector: gocvdetect.NewChessboard}
	for _, opt := range opts {
		opt(r)
	}
	return &cli.App{
		Name:            "sealcalib",
		Usage:           "calibrate SEAL scanners and maintain their device files",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`",
			},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "print the contents of a device file",
				ArgsUsage: "<device-file>",
				Action:    r.inspectAction,
			},
			{
				Name:  "export",
				Usage: "write a stereo calibration archive into a device file",
				UsageText: fmt.Sprintf("sealcalib export --%s <archive> --%s <device-file> [--%s <template>]",
					flagArchive, flagOutput, flagTemplate),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load the export job from `FILE`; other flags are ignored",
					},
					&cli.StringFlag{
						Name:  flagArchive,
						Usage: "stereo calibration archive",
					},
					&cli.StringFlag{
						Name:  flagTemplate,
						Usage: "existing device file to merge into",
					},
					&cli.StringFlag{
						Name:  flagOutput,
						Usage: "device file to write",
					},
					&cli.StringFlag{
						Name:  flagDevID,
						Usage: "device id written to the footer",
					},
					&cli.StringFlag{
						Name:  flagSoftVersion,
						Usage: "software version written to the footer",
					},
					&cli.BoolFlag{
						Name:  flagAtomic,
						Value: true,
						Usage: "write through a temporary file",
					},
				},
				Action: r.exportAction,
			},
			{
				Name:      "verify",
				Usage:     "check that a merged device file kept every template line it must not change",
				ArgsUsage: "<template> <output>",
				Action:    r.verifyAction,
			},
			{
				Name:      "report",
				Usage:     "print a quality report for a stereo calibration archive",
				ArgsUsage: "<archive>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagResolution,
						Usage: "device resolution as `WxH`, flagged when the calibration differs",
					},
				},
				Action: r.reportAction,
			},
			{
				Name:      "collect",
				Usage:     "detect a chessboard in a directory of stereo pairs and report coverage",
				ArgsUsage: "<image-dir>",
				Flags:     patternFlags(),
				Action:    r.collectAction,
			},
			{
				Name:      "calibrate",
				Usage:     "calibrate a stereo pair from a directory of chessboard captures and save the archive",
				ArgsUsage: "<image-dir>",
				Flags: append(patternFlags(),
					&cli.StringFlag{
						Name:     flagOutput,
						Required: true,
						Usage:    "stereo calibration archive to write",
					},
					&cli.Float64Flag{
						Name:  flagAlpha,
						Value: 0,
						Usage: "rectification scaling, 0 keeps only valid pixels and 1 keeps the whole view",
					},
				),
				Action: r.calibrateAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of export job files",
				Action: schemaAction,
			},
		},
	}
}

func patternFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  flagRows,
			Value: 6,
			Usage: "inner corner rows",
		},
		&cli.IntFlag{
			Name:  flagCols,
			Value: 9,
			Usage: "inner corner columns",
		},
		&cli.Float64Flag{
			Name:  flagSquareSize,
			Value: 20,
			Usage: "square size in millimeters",
		},
	}
}

// before sets up logging to the app's error writer and, when asked, to a file.
func (r *runner) before(c *cli.Context) error {
	r.logger = logging.NewBlankLogger("sealcalib")
	r.logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if path := c.String(flagLogFile); path != "" {
		r.logFile = logging.NewFileAppender(path)
		r.logger.AddAppender(r.logFile)
	}
	if !c.Bool(flagDebug) {
		r.logger.SetLevel(logging.INFO)
	}
	return nil
}

func (r *runner) after(c *cli.Context) error {
	if r.logFile == nil {
		return nil
	}
	return r.logFile.Close()
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	_, _ = fmt.Fprintf(w, format+"\n", a...)
}

func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	_, _ = fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}
