// Package logging builds the process logger and wraps it in the
// Reporter the migration steps emit their progress through.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KohakuBlueleaf/kohaku-hub-migrate/config"
)

// New builds a zap logger from the log configuration. Falls back to the
// production logger if the configuration cannot be built.
func New(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// Reporter carries the migration's progress events. It mirrors the four
// event kinds the hub services emit (info, success, warning, error),
// with success rendered as an info-level entry tagged event=success.
type Reporter struct {
	l *zap.Logger
}

// NewReporter wraps a zap logger.
func NewReporter(l *zap.Logger) *Reporter {
	return &Reporter{l: l}
}

// Info reports a step starting.
func (r *Reporter) Info(msg string, fields ...zap.Field) {
	r.l.Info(msg, fields...)
}

// Success reports a step completed.
func (r *Reporter) Success(msg string, fields ...zap.Field) {
	r.l.Info(msg, append(fields, zap.String("event", "success"))...)
}

// Warn reports a non-fatal anomaly; execution continues.
func (r *Reporter) Warn(msg string, fields ...zap.Field) {
	r.l.Warn(msg, fields...)
}

// Error reports a fatal failure.
func (r *Reporter) Error(msg string, fields ...zap.Field) {
	r.l.Error(msg, fields...)
}
