// Package applog provides the structured logging interface used across the
// relay core. The interface shape mirrors the teacher's
// internal/application/common.Logger; the concrete implementation backs it
// with logrus instead of a bare stdlib logger.
package applog

// Logger handles structured logging for the relay core.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Fields is a convenience alias for structured key/value pairs passed as a
// single variadic argument, e.g. log.Info("fetched", applog.Fields{"source": id}).
type Fields map[string]interface{}
