package logging

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every enabled entry out to its appenders. Subloggers share the appender slice but
// get their own level.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
}

func (l *impl) AddAppender(appender Appender) {
	l.appenders = append(l.appenders, appender)
}

func (l *impl) SetLevel(level Level) {
	l.level.Set(level)
}

func (l *impl) GetLevel() Level {
	return l.level.Get()
}

func (l *impl) Sublogger(subname string) Logger {
	name := subname
	if l.name != "" {
		name = l.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(l.level.Get()),
		inUTC:     l.inUTC,
		appenders: l.appenders,
	}
}

func (l *impl) Sync() error {
	var err error
	for _, appender := range l.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (l *impl) enabled(level Level) bool {
	return level >= l.level.Get()
}

// emit must be called exactly two frames below the public logging method so the recorded caller
// is the user of the logger.
func (l *impl) emit(level Level, msg string, fields []zapcore.Field) {
	now := time.Now()
	if l.inUTC {
		now = now.UTC()
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: l.name,
		Message:    msg,
		Caller:     callerOf(4),
	}
	for _, appender := range l.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (l *impl) print(level Level, args []interface{}) {
	if l.enabled(level) {
		l.emit(level, fmt.Sprint(args...), nil)
	}
}

func (l *impl) printf(level Level, template string, args []interface{}) {
	if l.enabled(level) {
		l.emit(level, fmt.Sprintf(template, args...), nil)
	}
}

func (l *impl) printw(level Level, msg string, keysAndValues []interface{}) {
	if l.enabled(level) {
		l.emit(level, msg, toFields(keysAndValues))
	}
}

// toFields pairs up alternating keys and values. A trailing key without a value gets an error as
// its value.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.NamedError(key, errors.New("log key has no value")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (l *impl) Debug(args ...interface{}) { l.print(DEBUG, args) }

func (l *impl) Debugf(template string, args ...interface{}) { l.printf(DEBUG, template, args) }

func (l *impl) Debugw(msg string, keysAndValues ...interface{}) { l.printw(DEBUG, msg, keysAndValues) }

func (l *impl) Info(args ...interface{}) { l.print(INFO, args) }

func (l *impl) Infof(template string, args ...interface{}) { l.printf(INFO, template, args) }

func (l *impl) Infow(msg string, keysAndValues ...interface{}) { l.printw(INFO, msg, keysAndValues) }

func (l *impl) Warn(args ...interface{}) { l.print(WARN, args) }

func (l *impl) Warnf(template string, args ...interface{}) { l.printf(WARN, template, args) }

func (l *impl) Warnw(msg string, keysAndValues ...interface{}) { l.printw(WARN, msg, keysAndValues) }

func (l *impl) Error(args ...interface{}) { l.print(ERROR, args) }

func (l *impl) Errorf(template string, args ...interface{}) { l.printf(ERROR, template, args) }

func (l *impl) Errorw(msg string, keysAndValues ...interface{}) { l.printw(ERROR, msg, keysAndValues) }

func callerOf(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
