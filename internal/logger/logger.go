// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps zerolog behind a small printf-style API so call sites stay terse, and can
// mirror output into a size-rotated log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures optional logger sinks
type Options struct {
	// File enables a rotating log file when non-empty
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	// Global logger instance; discards everything until Init is called
	defaultLogger = zerolog.Nop()
	fileSink      *lumberjack.Logger
)

// ParseLevel maps a config level string to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	InitWithOptions(level, format, Options{})
}

// InitWithOptions initializes the default logger and optionally adds a rotating file sink
func InitWithOptions(level string, format string, opts Options) {
	var console io.Writer = os.Stderr
	if strings.ToLower(format) == "text" {
		isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal,
		}
	}

	out := console
	if opts.File != "" {
		fileSink = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, fileSink)
	}

	defaultLogger = zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// SetOutput replaces the sink of the default logger, keeping the given level.
// Used by tests to capture output.
func SetOutput(w io.Writer, level string) {
	defaultLogger = zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Close flushes and closes the rotating file sink, if any
func Close() error {
	if fileSink == nil {
		return nil
	}
	return fileSink.Close()
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug().Msgf(format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	defaultLogger.Info().Msgf(format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn().Msgf(format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	defaultLogger.Error().Msgf(format, args...)
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	defaultLogger.WithLevel(zerolog.FatalLevel).Msg(msg)
	if defaultLogger.GetLevel() == zerolog.Disabled {
		fmt.Fprintln(os.Stderr, "[FATAL] "+msg)
	}
	_ = Close()
	os.Exit(1)
}
