// Package sealfile reads and writes SEAL scanner calibration files.
//
// A device file is line oriented and position sensitive:
//
//	1        W H                          target resolution
//	2        baseline_scale depth_scale   factory
//	3        dx dy                        factory center offset
//	4        tilt height                  factory tilt offset
//	5        fx fy cx cy k1 k2 p1 p2 k3 k4 k5 k6 r1 r2 r3   left camera
//	6        same layout                  right camera
//	7        projector record             kept verbatim
//	8..N-1   lookup table rows            optional, opaque
//	N        ***DevID:..***CalibrateDate:..***Type:..***SoftVersion:..
//
// The device parser on the scanner depends on this layout exactly, so writers never change the
// line count or the field count of a line.
package sealfile

import (
	"image"
	"strings"
)

// Zero based line indices.
const (
	lineResolution = iota
	lineScale
	lineCenterOffset
	lineTiltOffset
	lineLeftCamera
	lineRightCamera
	lineProjector
	lineLUTStart
)

// FooterPrefix starts the metadata line.
const FooterPrefix = "***DevID:"

// Format holds the constants of a device file dialect.
type Format struct {
	// Resolution is always written to line 1.
	Resolution image.Point
	// RecalibrationType is the footer Type of every file this package writes.
	RecalibrationType  string
	DefaultDevID       string
	DefaultSoftVersion string
	// DateLayout is a time layout for CalibrateDate.
	DateLayout string
	// ProjectorRecord is written to line 7 when a record holds none.
	ProjectorRecord []string
	// ReservedFieldCount is the number of fields after the twelve calibration values of a camera line.
	ReservedFieldCount int
	// MinLines is the shortest valid file.
	MinLines int
}

// DefaultFormat returns the SEAL dialect.
func DefaultFormat() Format {
	return Format{
		Resolution:         image.Point{X: 1280, Y: 720},
		RecalibrationType:  "Sychev-calibration",
		DefaultDevID:       "UNKNOWN",
		DefaultSoftVersion: "3.0.0.1116",
		DateLayout:         "2006-01-02_15-04-05",
		ProjectorRecord: strings.Fields(
			"2800.000000 2477.000000 542.000000 353.000000 " +
				"-0.220000 -0.295000 -0.000011 -0.000875 " +
				"4.029662 -0.007206 -0.133619 -0.003511 " +
				"28.377724 0.011272 1.662601"),
		ReservedFieldCount: 3,
		MinLines:           10,
	}
}

func (f Format) cameraFieldCount() int {
	return 12 + f.ReservedFieldCount
}
