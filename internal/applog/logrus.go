package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// logrusLogger implements Logger on top of sirupsen/logrus, emitting
// structured fields rather than the teacher's %v-joined args.
type logrusLogger struct {
	entry *logrus.Entry
}

// New creates a Logger that writes JSON lines to stdout.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// With returns a Logger that always carries the given fields.
func With(base Logger, fields Fields) Logger {
	ll, ok := base.(*logrusLogger)
	if !ok {
		return base
	}
	return &logrusLogger{entry: ll.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

// toFields accepts either a single Fields map or a flat key, value, key,
// value... list, matching how call sites in this module log.
func toFields(args []interface{}) logrus.Fields {
	if len(args) == 1 {
		if f, ok := args[0].(Fields); ok {
			return logrus.Fields(f)
		}
		if f, ok := args[0].(map[string]interface{}); ok {
			return logrus.Fields(f)
		}
	}
	out := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		out[key] = args[i+1]
	}
	return out
}
