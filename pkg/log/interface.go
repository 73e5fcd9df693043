// Package log provides a structured logging interface for remoteglm.
//
// The interface is slog-shaped (key/value pairs after the message) so call
// sites read the same regardless of backend. The default backend is zerolog;
// tests use the in-memory TestLogger.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("linear.glm").With(
//	    log.ModelNameKey, "glm_v1",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.FrameKey, "train.hex",
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// The With method returns a child logger with pre-populated fields, so
// per-model or per-frame context is attached once and reused.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	//
	// Example:
	//   logger.Info("Model training completed",
	//       log.DurationMsKey, 5432,
	//       log.AccuracyKey, 0.95,
	//   )
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	// If the first field is an error it is attached under the "error" key
	// together with its stack trace.
	//
	// Example:
	//   logger.Error("Model training failed",
	//       err,
	//       log.OperationKey, "fit",
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider defines an interface for creating and configuring loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger with a specific component identifier.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
