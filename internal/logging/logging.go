// Package logging builds the zap logger used by the CLI. Library consumers
// of the engine pass their own *zap.Logger (or none, in which case the
// engine stays silent with zap.NewNop).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production-configured logger writing to stderr. With debug
// enabled the level drops to Debug so pipeline state transitions are
// visible.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
