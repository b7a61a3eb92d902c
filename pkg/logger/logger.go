// Package logger provides the module's logging facade, backed by zerolog.
//
// The library logs only where errors are swallowed by contract: the
// directory client's skipped issuers and missing CRLs. Everything else
// returns errors instead.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents the logging level.
type Level int

// Log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// Logger provides leveled, structured logging.
type Logger struct {
	mu sync.Mutex
	zl zerolog.Logger
}

var defaultLogger = New(os.Stderr, LevelWarn)

// Default returns the default logger. The library defaults to warn so
// that a silent consumer stays silent.
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// New creates a new logger writing to output at the given level.
func New(output io.Writer, level Level) *Logger {
	zl := zerolog.New(output).
		Level(level.zerolog()).
		With().
		Timestamp().
		Str("component", "smarthealth").
		Logger()
	return &Logger{zl: zl}
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.zl.Level(level.zerolog())
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Field) {
	ev := l.zl.Debug()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Field) {
	ev := l.zl.Info()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Field) {
	ev := l.zl.Warn()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Field) {
	ev := l.zl.Error()
	applyFields(ev, fields)
	ev.Msg(msg)
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

// F builds a field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err builds an error field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

func applyFields(ev *zerolog.Event, fields []Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			ev.AnErr(f.Key, v)
		case string:
			ev.Str(f.Key, v)
		case int:
			ev.Int(f.Key, v)
		default:
			ev.Interface(f.Key, v)
		}
	}
}
