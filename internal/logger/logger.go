package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Options controls logger initialization.
type Options struct {
	Level  string // debug, info, warn, error (default info)
	Pretty bool   // Human-readable console output instead of JSON
	Out    io.Writer
}

// Init initializes the default logger. It is safe to call more than once;
// only the first call takes effect.
func Init(opts Options) {
	once.Do(func() {
		out := opts.Out
		if out == nil {
			out = os.Stderr
		}
		if opts.Pretty {
			out = zerolog.ConsoleWriter{Out: out}
		}

		level := zerolog.InfoLevel
		if parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil && opts.Level != "" {
			level = parsed
		}

		defaultLogger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	})
}

// Get returns the initialized default logger, initializing with defaults if
// Init has not been called yet.
func Get() zerolog.Logger {
	Init(Options{})
	return defaultLogger
}

// Debug logs a debug message with optional key/value fields.
func Debug(msg string, fields map[string]any) {
	l := Get()
	event(l.Debug(), fields).Msg(msg)
}

// Info logs an informational message with optional key/value fields.
func Info(msg string, fields map[string]any) {
	l := Get()
	event(l.Info(), fields).Msg(msg)
}

// Warn logs a warning message with optional key/value fields.
func Warn(msg string, fields map[string]any) {
	l := Get()
	event(l.Warn(), fields).Msg(msg)
}

// Error logs an error message with an optional error and key/value fields.
func Error(msg string, err error, fields map[string]any) {
	l := Get()
	e := l.Error()
	if err != nil {
		e = e.Err(err)
	}
	event(e, fields).Msg(msg)
}

func event(e *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
