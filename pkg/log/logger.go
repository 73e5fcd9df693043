package log

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// ComponentAttrKey is the field under which GetLoggerWithName stores the name.
const ComponentAttrKey = "component"

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = newZerologProvider(os.Stderr, "console", LevelInfo)
)

// SetupLogger configures the global provider.
// format is "json" or "console"; loglevel is one of debug, info, warn, error.
// Warnings raised through the errors package are routed to the new logger.
func SetupLogger(loglevel, format string, w io.Writer) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}
	p := newZerologProvider(w, format, level)
	SetProvider(p)

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(warning error) {
		warnLogger.Warn(warning.Error(), "warning", warning)
	})
	return nil
}

// SetProvider replaces the global provider. Tests use it to install a TestLoggerProvider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetLogger returns the default logger of the global provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// ToLogLevel parses a level name.
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// zerologProvider hands out loggers sharing one zerolog root.
type zerologProvider struct {
	mu   sync.RWMutex
	root zerolog.Logger
}

func newZerologProvider(w io.Writer, format string, level Level) *zerologProvider {
	zerolog.ErrorStackMarshaler = marshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	root := zerolog.New(out).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &zerologProvider{root: root}
}

func (p *zerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.root}
}

func (p *zerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.root.With().Str(ComponentAttrKey, name).Logger()}
}

func (p *zerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = p.root.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ctx = ctx.Err(err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(keyString(fields[i]), fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return l.zl.GetLevel() <= toZerologLevel(level)
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Stack().Err(err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := keyString(fields[i])
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return "!BADKEY"
}
