// Package logger provides structured logging for the im-server on top of
// zerolog, with optional daily-rotated file output alongside stdout.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logging interface used throughout the server.
// Implementations write entries at Debug/Info/Warn/Error levels and support
// deriving component-scoped loggers with With.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a derived Logger that includes the given fields in every
	// entry. The receiver is unchanged.
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. an open log file).
	// Safe to call multiple times.
	Close() error
}

// ParseLevel converts a config-file level name into a zerolog level.
// Unknown names default to info.
//
// Parameters:
//   - level: One of "debug", "info", "warn", "error" (case-insensitive)
//
// Returns:
//   - The matching zerolog.Level, or zerolog.InfoLevel for unknown names
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *DailyFileWriter
	owner      bool
}

// New creates a Logger writing to stdout, tagged with the service name and
// filtered to the given level.
//
// Parameters:
//   - serviceName: Name added as a field to every entry
//   - level: Minimum level to log
//
// Returns:
//   - A ready-to-use Logger
func New(serviceName string, level zerolog.Level) Logger {
	return wrap(zerolog.New(os.Stdout), serviceName, level, nil, false)
}

// NewFile creates a Logger writing to both stdout and daily-rotated files in
// logDir (created if absent), named {serviceName}_{date}.log.
//
// Parameters:
//   - serviceName: Name added as a field to every entry and used in file names
//   - logDir: Directory for log files
//   - level: Minimum level to log
//
// Returns:
//   - A ready-to-use Logger, or an error if the log directory or the initial
//     log file cannot be created
func NewFile(serviceName, logDir string, level zerolog.Level) (Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	fw, err := NewDailyFileWriter(serviceName, logDir)
	if err != nil {
		return nil, fmt.Errorf("create file writer: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, fw)
	return wrap(zerolog.New(multi), serviceName, level, fw, true), nil
}

// NewNop returns a Logger that discards all output. Intended for tests.
func NewNop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

func wrap(l zerolog.Logger, serviceName string, level zerolog.Level, fw *DailyFileWriter, owner bool) Logger {
	return &zerologLogger{
		logger:     l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
		fileWriter: fw,
		owner:      owner,
	}
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger:     z.logger.With().Fields(toMap(fields)).Logger(),
		fileWriter: z.fileWriter,
		owner:      false,
	}
}

// Close implements Logger. Only the logger constructed by NewFile closes the
// underlying file writer; derived loggers share it and are no-ops.
func (z *zerologLogger) Close() error {
	if z.fileWriter != nil && z.owner {
		return z.fileWriter.Close()
	}

	return nil
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
