package sealfile

import "fmt"

// FormatError reports a device file that does not follow the layout. Line and Field are one
// based; zero means unknown or the whole line.
type FormatError struct {
	Path   string
	Line   int
	Field  int
	Reason string
}

func (e *FormatError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "device file"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Field > 0 {
		loc = fmt.Sprintf("%s field %d", loc, e.Field)
	}
	return loc + ": " + e.Reason
}

func withPath(err error, path string) error {
	if fe, ok := err.(*FormatError); ok {
		out := *fe
		out.Path = path
		return &out
	}
	return err
}
