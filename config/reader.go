package config

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Read reads a job from the given file. Environment variables are expanded before parsing and
// relative paths in the job are resolved against the file's directory.
func Read(filePath string) (*Job, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	job, err := FromReader(filePath, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	job.resolvePaths(filepath.Dir(filePath))
	return job, nil
}

// FromReader reads a job in JSON5 from r. originalPath names the source in errors.
func FromReader(originalPath string, r io.Reader) (*Job, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json5.Unmarshal(buf, &job); err != nil {
		return nil, errors.Wrapf(err, "cannot parse job %q", originalPath)
	}
	if err := job.Validate("job"); err != nil {
		return nil, errors.Wrapf(err, "invalid job %q", originalPath)
	}
	return &job, nil
}

func (j *Job) resolvePaths(dir string) {
	for _, p := range []*string{&j.Template, &j.Archive, &j.Output} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}
