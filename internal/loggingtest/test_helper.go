package loggingtest

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a logger for tests that outputs to t.Logf at
// debug level, so per-request debug fields show up in failing tests.
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Named(t.Name())
}
