package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestConsoleOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newImpl("", DEBUG, true, NewWriterAppender(&buf))

	logger.Infow("loaded calibration", "devID", "JMS1006207", "lines", 12)

	line := strings.TrimSuffix(buf.String(), "\n")
	parts := strings.Split(line, "\t")
	test.That(t, len(parts), test.ShouldEqual, 5)
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(parts[0]), test.ShouldEqual, len("2024-01-01T00:00:00.000Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[3], test.ShouldEqual, "loaded calibration")
	test.That(t, parts[4], test.ShouldContainSubstring, `"devID": "JMS1006207"`)
	test.That(t, parts[4], test.ShouldContainSubstring, `"lines": 12`)
}

func TestLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Infof("dropped %d", 1)
	logger.Warn("kept")
	logger.Errorf("kept %d", 2)
	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.All()[0].Message, test.ShouldEqual, "kept")
	test.That(t, logs.All()[1].Message, test.ShouldEqual, "kept 2")

	logger.SetLevel(DEBUG)
	logger.Debugw("now visible", "k", "v")
	test.That(t, logs.FilterMessage("now visible").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterField(logs.All()[2].Context[0]).Len(), test.ShouldEqual, 1)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	sub := logger.Sublogger("sealfile")
	sub.Info("hello")
	subsub := sub.Sublogger("merge")
	subsub.Warn("nested")

	entries := logs.All()
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "sealfile")
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "sealfile.merge")

	// Sublogger levels are independent of the parent after creation.
	sub.SetLevel(ERROR)
	sub.Warn("dropped")
	logger.Warn("parent")
	test.That(t, logs.FilterMessage("dropped").Len(), test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("parent").Len(), test.ShouldEqual, 1)

	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestUnpairedKey(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("odd", "only")

	entries := logs.All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, len(entries[0].Context), test.ShouldEqual, 1)
	test.That(t, entries[0].Context[0].Key, test.ShouldEqual, "only")
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.out)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealcalib.log")
	appender := NewFileAppender(path)
	logger := NewBlankLogger("cli")
	logger.AddAppender(appender)

	logger.Warnw("template left camera line is short", "fields", 12)
	test.That(t, appender.Close(), test.ShouldBeNil)

	//nolint:gosec
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "WARN")
	test.That(t, string(data), test.ShouldContainSubstring, "template left camera line is short")
	test.That(t, string(data), test.ShouldContainSubstring, `"fields": 12`)
}
