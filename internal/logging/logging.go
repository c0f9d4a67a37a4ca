package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the bootstrap logger used until the logging document is applied.
// It writes JSON to stderr at info level.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"phase": "bootstrap"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build bootstrap logger: %w", err)
	}
	return logger.Named("bootstrap"), nil
}
