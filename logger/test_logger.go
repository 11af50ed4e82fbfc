package logger

import (
	"context"
	"testing"
)

// TestLogger routes log lines through testing.TB so they are attached to the
// right test and silenced unless the test fails or -v is set.
type TestLogger struct {
	tb testing.TB
}

var _ Logger = (*TestLogger)(nil)

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) Debug(format string, args ...interface{}) {
	l.tb.Logf("[DEBU] "+format, args...)
}

func (l *TestLogger) Info(format string, args ...interface{}) {
	l.tb.Logf("[INFO] "+format, args...)
}

func (l *TestLogger) Warning(format string, args ...interface{}) {
	l.tb.Logf("[WARN] "+format, args...)
}

func (l *TestLogger) Error(format string, args ...interface{}) {
	l.tb.Logf("[ERRO] "+format, args...)
}

func (l *TestLogger) CDebugf(_ context.Context, format string, args ...interface{}) {
	l.Debug(format, args...)
}

func (l *TestLogger) CInfof(_ context.Context, format string, args ...interface{}) {
	l.Info(format, args...)
}

func (l *TestLogger) CWarningf(_ context.Context, format string, args ...interface{}) {
	l.Warning(format, args...)
}

func (l *TestLogger) CErrorf(_ context.Context, format string, args ...interface{}) {
	l.Error(format, args...)
}

func (l *TestLogger) CloneWithAddedDepth(depth int) Logger { return l }
