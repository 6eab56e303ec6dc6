// Package logger provides structured logging and run metrics for status-history.
//
// Logging is backed by zap. A Logger writes one JSON object per entry to the
// writer it was built with; Setup builds the process logger, which writes
// human-readable lines to stderr and, when a log file is configured, JSON
// lines to a size-rotated file.
//
// Metrics tracking includes counters (incrementing values), gauges (point-in-time
// values) and timings (duration measurements) aggregated into a snapshot that
// the CLI prints after a run.
//
// Example usage:
//
//	logger.Info("Browser started", logger.Fields{
//	    "headless": true,
//	})
//
//	logger.Error("Closing browser failed", nil, err)
//
//	logger.IncrCounter("archive.writes")
//	logger.RecordTiming("archive.write", time.Since(start))
//
// Components built with their own Logger and Metrics (the extractors) use
// the instance methods instead.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel converts a level name such as "debug" into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "WARNING":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Fields represents structured log fields
type Fields map[string]interface{}

func (f Fields) zap() []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

// Logger provides structured logging
type Logger struct {
	z *zap.Logger
}

var defaultLogger = New(LevelInfo, os.Stderr)

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// New creates a logger writing JSON entries at or above level to w.
func New(level Level, w io.Writer) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), level.zap())
	return &Logger{z: zap.New(core)}
}

// Options configures the process logger built by Setup.
type Options struct {
	Level Level
	// Console receives human-readable entries; os.Stderr when nil.
	Console io.Writer
	// File, when set, also receives JSON entries and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the process logger from opts.
func Setup(opts Options) (*Logger, error) {
	level := opts.Level
	if level == "" {
		level = LevelInfo
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleCfg := encoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level.zap()),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSizeMB, 10),
			MaxBackups: withDefault(opts.MaxBackups, 5),
			MaxAge:     withDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotated), level.zap()))
	}

	return &Logger{z: zap.New(zapcore.NewTee(cores...))}, nil
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// SetDefault sets the default package-level logger used by the convenience functions
// (Debug, Info, Warn, Error).
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{z: l.z.With(fields.zap()...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// log writes a structured log entry
func (l *Logger) log(level Level, message string, fields Fields, err error) {
	zf := fields.zap()
	if err != nil {
		zf = append(zf, zap.Error(err))
	}

	switch level {
	case LevelDebug:
		l.z.Debug(message, zf...)
	case LevelWarn:
		l.z.Warn(message, zf...)
	case LevelError:
		l.z.Error(message, zf...)
	default:
		l.z.Info(message, zf...)
	}
}

// Debug logs a debug message with optional structured fields.
func (l *Logger) Debug(message string, fields Fields) {
	l.log(LevelDebug, message, fields, nil)
}

// Info logs an informational message with optional structured fields.
func (l *Logger) Info(message string, fields Fields) {
	l.log(LevelInfo, message, fields, nil)
}

// Warn logs a warning message with optional structured fields.
// Warnings mark anomalies the run recovered from.
func (l *Logger) Warn(message string, fields Fields) {
	l.log(LevelWarn, message, fields, nil)
}

// Error logs an error message with optional structured fields and an error object.
func (l *Logger) Error(message string, fields Fields, err error) {
	l.log(LevelError, message, fields, err)
}

// Package-level convenience functions using default logger

// Debug logs a debug message with the default logger
func Debug(message string, fields Fields) {
	defaultLogger.Debug(message, fields)
}

// Info logs an info message with the default logger
func Info(message string, fields Fields) {
	defaultLogger.Info(message, fields)
}

// Warn logs a warning message with the default logger
func Warn(message string, fields Fields) {
	defaultLogger.Warn(message, fields)
}

// Error logs an error message with the default logger
func Error(message string, fields Fields, err error) {
	defaultLogger.Error(message, fields, err)
}
