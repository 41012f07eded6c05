package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"market-relay/src/models"

	"github.com/rs/zerolog"
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	out    io.Writer
	level  zerolog.Level
	logger zerolog.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance writing JSON lines to stdout.
// cfg may be nil, in which case the level defaults to INFO.
func NewLogger(cfg *models.MConfig, name string) *Logger {
	level := "INFO"
	if cfg != nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	return NewLoggerWithWriter(os.Stdout, level, name)
}

// -----------------------------------------------------------------------------

// NewLoggerWithWriter creates a Logger writing to w at the given level.
func NewLoggerWithWriter(w io.Writer, level, name string) *Logger {
	return newLogger(w, ParseLevel(level), name)
}

func newLogger(w io.Writer, level zerolog.Level, name string) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", name).
		Logger()
	return &Logger{name: name, out: w, level: level, logger: zl}
}

// -----------------------------------------------------------------------------

// ParseLevel maps the config level names (DEBUG, INFO, WARNING, ERROR, CRITICAL) to zerolog.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// -----------------------------------------------------------------------------

// Named returns a logger for a sub component sharing the same output and level.
func (l *Logger) Named(name string) *Logger {
	return newLogger(l.out, l.level, name)
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying an extra structured field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		name:   l.name,
		out:    l.out,
		level:  l.level,
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
