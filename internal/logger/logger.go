// Package logger provides structured logging for dynsql.
package logger

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger with key/value helpers.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// ParseLevel maps a configuration level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, errors.Errorf("unknown log level: %s", level)
}

// New creates a logger writing level and above in format ("text" or "json")
// to output ("stderr", "stdout" or a file path).
func New(level, format, output string) (*Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	var ws zapcore.WriteSyncer
	switch strings.ToLower(output) {
	case "stderr", "":
		ws = zapcore.AddSync(os.Stderr)
	case "stdout":
		ws = zapcore.AddSync(os.Stdout)
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", output)
		}
		ws = zapcore.AddSync(f)
	}

	return FromCore(zapcore.NewCore(encoder, ws, zapLevel)), nil
}

// FromCore wraps an existing zap core, e.g. an observer in tests.
func FromCore(core zapcore.Core) *Logger {
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), base: zap.NewNop()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.base.Sync() }

// With returns a logger that adds the given key/value pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), base: l.base}
}

// Named adds a name segment to the logger.
func (l *Logger) Named(name string) *Logger {
	base := l.base.Named(name)
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

func (l *Logger) Debug(msg string, keysAndValues ...any) { l.SugaredLogger.Debugw(msg, keysAndValues...) }
func (l *Logger) Info(msg string, keysAndValues ...any)  { l.SugaredLogger.Infow(msg, keysAndValues...) }
func (l *Logger) Warn(msg string, keysAndValues ...any)  { l.SugaredLogger.Warnw(msg, keysAndValues...) }
func (l *Logger) Error(msg string, keysAndValues ...any) { l.SugaredLogger.Errorw(msg, keysAndValues...) }
