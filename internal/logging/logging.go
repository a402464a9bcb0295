// Package logging builds the process logger. Responses are written to
// stdout by the stdio bindings, so log output never goes there.
package logging

import (
	"os"

	rlogging "github.com/replicate/go/logging"
	"github.com/replicate/go/must"
	"go.uber.org/zap"
)

// LogFileEnv, when non-empty, keeps the replicate output path.
const LogFileEnv = "LOG_FILE"

// Config returns the replicate logging config with its outputs moved off
// stdout.
func Config() zap.Config {
	cfg := rlogging.NewConfig()
	if os.Getenv(LogFileEnv) == "" {
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// New returns a named logger built from Config.
func New(name string) *zap.Logger {
	cfg := Config()
	return must.Get(cfg.Build()).Named(name)
}
