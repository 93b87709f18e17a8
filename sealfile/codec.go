package sealfile

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/logging"
)

var (
	devIDRe         = regexp.MustCompile(`DevID:([^*]+)`)
	calibrateDateRe = regexp.MustCompile(`CalibrateDate:([^*]+)`)
	typeRe          = regexp.MustCompile(`Type:([^*]+)`)
	softVersionRe   = regexp.MustCompile(`SoftVersion:([^\s*]+)`)
)

// A Codec converts between device files and calib.DeviceCalibration records.
type Codec struct {
	format Format
	clock  clock.Clock
	logger logging.Logger
}

// NewCodec returns a Codec for format. CalibrateDate is taken from clk.
func NewCodec(format Format, clk clock.Clock, logger logging.Logger) *Codec {
	return &Codec{format: format, clock: clk, logger: logger}
}

// Format returns the dialect the codec writes.
func (c *Codec) Format() Format {
	return c.format
}

// Load reads a device file.
func (c *Codec) Load(path string) (*calib.DeviceCalibration, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open device file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	rec, err := c.Parse(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return rec, nil
}

// Parse reads a device file from r. Invalid UTF-8 is dropped and surrounding whitespace is
// ignored on every line. Camera records always come back with eight distortion coefficients and
// the stereo block is the placeholder, since device files store no extrinsics.
func (c *Codec) Parse(r io.Reader) (*calib.DeviceCalibration, error) {
	raw, err := readLines(r)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	if len(lines) < c.format.MinLines {
		return nil, &FormatError{
			Line:   len(lines),
			Reason: fmt.Sprintf("too few lines: have %d, need at least %d", len(lines), c.format.MinLines),
		}
	}

	res, err := parseInts(lines, lineResolution)
	if err != nil {
		return nil, err
	}
	resolution := image.Point{X: res[0], Y: res[1]}
	scales, err := parseFloatPair(lines, lineScale)
	if err != nil {
		return nil, err
	}
	center, err := parseInts(lines, lineCenterOffset)
	if err != nil {
		return nil, err
	}
	tilt, err := parseInts(lines, lineTiltOffset)
	if err != nil {
		return nil, err
	}
	factory := calib.FactoryParameters{
		BaselineScale: scales[0],
		DepthScale:    scales[1],
		CenterOffset:  image.Point{X: center[0], Y: center[1]},
		TiltOffset:    image.Point{X: tilt[0], Y: tilt[1]},
	}

	left, leftReserved, err := parseCamera(lines, lineLeftCamera, resolution)
	if err != nil {
		return nil, err
	}
	right, rightReserved, err := parseCamera(lines, lineRightCamera, resolution)
	if err != nil {
		return nil, err
	}

	footer, hasFooter := findFooter(lines)
	lutEnd := len(lines)
	var meta calib.Metadata
	if hasFooter {
		lutEnd = footer
		meta = parseMetadata(lines[footer])
	} else {
		c.logger.Warnw("device file has no metadata footer", "lines", len(lines))
	}

	rec, err := calib.NewDeviceCalibration(resolution, factory, left, right, nil, meta)
	if err != nil {
		return nil, &FormatError{Line: lineResolution + 1, Reason: err.Error()}
	}
	rec.LeftReserved = leftReserved
	rec.RightReserved = rightReserved
	if lineProjector < lutEnd {
		rec.Projector = strings.Fields(lines[lineProjector])
	}
	if lineLUTStart < lutEnd {
		rec.LUT = c.parseLUT(lines[lineLUTStart:lutEnd])
	}
	return rec, nil
}

// Write encodes rec to path without a template. The file is truncated first; see
// utils.AtomicWriteFile for an all or nothing write.
func (c *Codec) Write(rec *calib.DeviceCalibration, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create device file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return c.Encode(rec, f)
}

// Encode writes rec in full. Line 1 is the format resolution regardless of rec.Resolution, the
// projector line falls back to the format placeholder and the footer gets the recalibration type
// and the current date.
func (c *Codec) Encode(rec *calib.DeviceCalibration, w io.Writer) error {
	if rec == nil || rec.Left == nil || rec.Right == nil {
		return errors.New("device record with both cameras is required")
	}
	lines := make([]string, 0, lineLUTStart+len(rec.LUT)+1)
	lines = append(lines,
		formatInts(c.format.Resolution.X, c.format.Resolution.Y),
		formatFloats(rec.Factory.BaselineScale, rec.Factory.DepthScale),
		formatInts(rec.Factory.CenterOffset.X, rec.Factory.CenterOffset.Y),
		formatInts(rec.Factory.TiltOffset.X, rec.Factory.TiltOffset.Y),
		c.cameraLine(rec.Left, rec.LeftReserved),
		c.cameraLine(rec.Right, rec.RightReserved),
	)
	projector := rec.Projector
	if len(projector) == 0 {
		projector = c.format.ProjectorRecord
	}
	lines = append(lines, strings.Join(projector, " "))
	for _, row := range rec.LUT {
		lines = append(lines, formatLUTRow(row))
	}
	lines = append(lines, c.footer(rec.Metadata.DevID, rec.Metadata.SoftVersion))
	return writeLines(w, lines)
}

// WriteWithTemplate merges rec into the template file and writes the result to outputPath. The
// template is read completely before outputPath is opened, so both may name the same file.
func (c *Codec) WriteWithTemplate(rec *calib.DeviceCalibration, templatePath, outputPath string) (err error) {
	//nolint:gosec
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return errors.Wrap(err, "cannot read template")
	}
	var buf bytes.Buffer
	if err := c.Merge(rec, bytes.NewReader(template), &buf); err != nil {
		return withPath(err, templatePath)
	}
	//nolint:gosec
	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrap(err, "cannot create device file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = buf.WriteTo(f)
	return err
}

// Merge copies the template to w, changing only line 1 (format resolution), line 5 (the left
// camera's twelve calibration values) and the footer. Whatever reserved left camera fields the
// template holds are kept and missing ones are zero padded. Every other line is copied byte for
// byte.
func (c *Codec) Merge(rec *calib.DeviceCalibration, template io.Reader, w io.Writer) error {
	if rec == nil || rec.Left == nil {
		return errors.New("device record with a left camera is required")
	}
	lines, err := readLines(template)
	if err != nil {
		return err
	}
	if len(lines) < c.format.MinLines {
		return &FormatError{
			Line:   len(lines),
			Reason: fmt.Sprintf("template too short: have %d lines, need at least %d", len(lines), c.format.MinLines),
		}
	}
	footer, ok := findFooter(lines)
	if !ok {
		return &FormatError{Reason: "template has no " + FooterPrefix + " footer"}
	}

	lines[lineResolution] = formatInts(c.format.Resolution.X, c.format.Resolution.Y)

	var templateReserved []string
	if fields := strings.Fields(lines[lineLeftCamera]); len(fields) > calib.CalibrationFieldCount {
		templateReserved = fields[calib.CalibrationFieldCount:]
	}
	lines[lineLeftCamera] = c.cameraLine(rec.Left, templateReserved)

	devID := rec.Metadata.DevID
	if devID == "" {
		devID = firstMatch(devIDRe, lines[footer])
	}
	softVersion := rec.Metadata.SoftVersion
	if softVersion == "" {
		softVersion = firstMatch(softVersionRe, lines[footer])
	}
	lines[footer] = c.footer(devID, softVersion)
	return writeLines(w, lines)
}

// VerifyMerge checks that output keeps every template line a merge must not touch: the factory
// lines 2 to 4, the right camera, the projector record and the lookup table.
func (c *Codec) VerifyMerge(template, output io.Reader) error {
	want, err := readLines(template)
	if err != nil {
		return err
	}
	got, err := readLines(output)
	if err != nil {
		return err
	}
	if len(want) != len(got) {
		return &FormatError{Reason: fmt.Sprintf("line count changed from %d to %d", len(want), len(got))}
	}
	if len(want) < c.format.MinLines {
		return &FormatError{Line: len(want), Reason: fmt.Sprintf("template too short: %d lines", len(want))}
	}
	footer, ok := findFooter(want)
	if !ok {
		footer = len(want)
	}
	check := []int{lineScale, lineCenterOffset, lineTiltOffset, lineRightCamera, lineProjector}
	for i := lineLUTStart; i < footer; i++ {
		check = append(check, i)
	}
	for _, i := range check {
		if want[i] != got[i] {
			return &FormatError{Line: i + 1, Reason: fmt.Sprintf("differs from template: %q became %q", want[i], got[i])}
		}
	}
	return nil
}

func (c *Codec) cameraLine(cam *calib.CameraParameters, reserved []string) string {
	fields := cam.CalibrationFields()
	parts := make([]string, 0, c.format.cameraFieldCount())
	for _, v := range fields {
		parts = append(parts, formatFloat(v))
	}
	return strings.Join(append(parts, c.reservedFields(reserved)...), " ")
}

// reservedFields keeps the first ReservedFieldCount held values as they were written and pads
// with zeros when fewer are held.
func (c *Codec) reservedFields(held []string) []string {
	out := make([]string, c.format.ReservedFieldCount)
	n := copy(out, held)
	for i := n; i < len(out); i++ {
		out[i] = formatFloat(0)
	}
	if len(held) != len(out) {
		c.logger.Debugw("camera line reserved fields resized", "held", len(held), "want", len(out))
	}
	return out
}

func (c *Codec) footer(devID, softVersion string) string {
	if devID == "" {
		devID = c.format.DefaultDevID
	}
	if softVersion == "" {
		softVersion = c.format.DefaultSoftVersion
	}
	return FooterPrefix + devID +
		"***CalibrateDate:" + c.clock.Now().Format(c.format.DateLayout) +
		"***Type:" + c.format.RecalibrationType +
		"***SoftVersion:" + softVersion
}

func (c *Codec) parseLUT(lines []string) [][]float64 {
	var lut [][]float64
	for i, line := range lines {
		if line == "" || strings.HasPrefix(line, "***") {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				c.logger.Warnw("dropping unparseable lookup table", "line", lineLUTStart+i+1, "field", j+1, "error", err)
				return nil
			}
			row[j] = v
		}
		lut = append(lut, row)
	}
	return lut
}

// readLines reads everything from r. The result has no trailing empty line for a final newline.
func readLines(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read device file")
	}
	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

func writeLines(w io.Writer, lines []string) error {
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return errors.Wrap(err, "cannot write device file")
}

// findFooter scans backwards, no earlier than the projector line, for the metadata line.
func findFooter(lines []string) (int, bool) {
	for i := len(lines) - 1; i >= lineProjector; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), FooterPrefix) {
			return i, true
		}
	}
	return 0, false
}

func parseMetadata(line string) calib.Metadata {
	return calib.Metadata{
		DevID:         firstMatch(devIDRe, line),
		CalibrateDate: firstMatch(calibrateDateRe, line),
		Type:          firstMatch(typeRe, line),
		SoftVersion:   firstMatch(softVersionRe, line),
	}
}

func firstMatch(re *regexp.Regexp, line string) string {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func parseInts(lines []string, idx int) ([2]int, error) {
	var out [2]int
	fields := strings.Fields(lines[idx])
	if len(fields) != 2 {
		return out, &FormatError{Line: idx + 1, Reason: fmt.Sprintf("expected 2 integers, got %d fields", len(fields))}
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return out, &FormatError{Line: idx + 1, Field: i + 1, Reason: fmt.Sprintf("not an integer: %q", f)}
		}
		out[i] = v
	}
	return out, nil
}

func parseFloatPair(lines []string, idx int) ([2]float64, error) {
	var out [2]float64
	fields := strings.Fields(lines[idx])
	if len(fields) != 2 {
		return out, &FormatError{Line: idx + 1, Reason: fmt.Sprintf("expected 2 numbers, got %d fields", len(fields))}
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return out, &FormatError{Line: idx + 1, Field: i + 1, Reason: fmt.Sprintf("not a number: %q", f)}
		}
		out[i] = v
	}
	return out, nil
}

// parseFloats parses at least minFields and at most maxFields leading values of a line.
func parseFloats(lines []string, idx, minFields, maxFields int) ([]float64, error) {
	fields := strings.Fields(lines[idx])
	if len(fields) < minFields {
		return nil, &FormatError{
			Line:   idx + 1,
			Reason: fmt.Sprintf("expected at least %d values, got %d", minFields, len(fields)),
		}
	}
	n := min(len(fields), maxFields)
	out := make([]float64, n)
	for i, f := range fields[:n] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &FormatError{Line: idx + 1, Field: i + 1, Reason: fmt.Sprintf("not a number: %q", f)}
		}
		out[i] = v
	}
	return out, nil
}

func parseCamera(lines []string, idx int, size image.Point) (*calib.CameraParameters, []string, error) {
	values, err := parseFloats(lines, idx, calib.MinimumRecordFields, calib.CalibrationFieldCount)
	if err != nil {
		return nil, nil, err
	}
	cam, err := calib.NewCameraParametersFromRecord(values, size)
	if err != nil {
		return nil, nil, &FormatError{Line: idx + 1, Reason: err.Error()}
	}
	var reserved []string
	if fields := strings.Fields(lines[idx]); len(fields) > calib.CalibrationFieldCount {
		reserved = fields[calib.CalibrationFieldCount:]
	}
	return cam, reserved, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloats(values ...float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

func formatInts(values ...int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

// formatLUTRow writes the shortest representation that reads back to the same value.
func formatLUTRow(row []float64) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
