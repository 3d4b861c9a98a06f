// Package logger is the house logging facade: a small structured API over
// zerolog. Call sites compose fields (`WithField(...).Warn(...)`) and stay
// ignorant of the backend.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string level to Level
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "fatal", "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger wraps a zerolog.Logger with accumulated fields.
type Logger struct {
	zl zerolog.Logger
}

// Config for logger
type Config struct {
	Level   Level
	Output  io.Writer
	Service string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(cfg Config) {
	once.Do(func() {
		defaultLogger = New(cfg)
	})
}

// Default returns the default logger
func Default() *Logger {
	if defaultLogger == nil {
		Init(Config{Level: LevelInfo})
	}
	return defaultLogger
}

// New creates a new logger instance
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Service == "" {
		cfg.Service = "kitchenhub"
	}
	zl := zerolog.New(cfg.Output).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()
	return &Logger{zl: zl}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithContext extracts request_id and owner_id from context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zctx := l.zl.With()
	if reqID := ctx.Value("request_id"); reqID != nil {
		zctx = zctx.Str("request_id", fmt.Sprintf("%v", reqID))
	}
	if ownerID := ctx.Value("owner_id"); ownerID != nil {
		zctx = zctx.Str("owner_id", fmt.Sprintf("%v", ownerID))
	}
	return &Logger{zl: zctx.Logger()}
}

// WithError adds error information
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithDuration adds duration in milliseconds
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{zl: l.zl.With().Float64("duration_ms", float64(d.Microseconds())/1000.0).Logger()}
}

// Zerolog exposes the underlying logger for components that take one directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Log methods. Messages are printf-formatted when args are given.
func (l *Logger) Debug(msg string, args ...any) { l.zl.Debug().Msgf(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.zl.Info().Msgf(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.zl.Warn().Msgf(msg, args...) }
func (l *Logger) Error(msg string, args ...any) {
	l.zl.Error().Caller(1).Msgf(msg, args...)
}
func (l *Logger) Fatal(msg string, args ...any) {
	// zerolog exits the process after a Fatal event
	l.zl.Fatal().Caller(1).Msgf(msg, args...)
}

// Package-level functions using default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
func Fatal(msg string, args ...any) { Default().Fatal(msg, args...) }

func WithField(key string, value any) *Logger  { return Default().WithField(key, value) }
func WithFields(fields map[string]any) *Logger { return Default().WithFields(fields) }
func WithContext(ctx context.Context) *Logger  { return Default().WithContext(ctx) }
func WithError(err error) *Logger              { return Default().WithError(err) }
func WithDuration(d time.Duration) *Logger     { return Default().WithDuration(d) }
