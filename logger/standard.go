package logger

import (
	"context"

	logging "github.com/keybase/go-logging"
)

// Standard is a Logger backed by go-logging. One instance per module name;
// go-logging deduplicates loggers internally.
type Standard struct {
	internal *logging.Logger
}

var _ Logger = (*Standard)(nil)

func New(module string) *Standard {
	return &Standard{internal: logging.MustGetLogger(module)}
}

func (s *Standard) Debug(format string, args ...interface{}) {
	s.internal.Debugf(format, args...)
}

func (s *Standard) Info(format string, args ...interface{}) {
	s.internal.Infof(format, args...)
}

func (s *Standard) Warning(format string, args ...interface{}) {
	s.internal.Warningf(format, args...)
}

func (s *Standard) Error(format string, args ...interface{}) {
	s.internal.Errorf(format, args...)
}

func (s *Standard) CDebugf(_ context.Context, format string, args ...interface{}) {
	s.internal.Debugf(format, args...)
}

func (s *Standard) CInfof(_ context.Context, format string, args ...interface{}) {
	s.internal.Infof(format, args...)
}

func (s *Standard) CWarningf(_ context.Context, format string, args ...interface{}) {
	s.internal.Warningf(format, args...)
}

func (s *Standard) CErrorf(_ context.Context, format string, args ...interface{}) {
	s.internal.Errorf(format, args...)
}

func (s *Standard) CloneWithAddedDepth(depth int) Logger {
	return s
}
