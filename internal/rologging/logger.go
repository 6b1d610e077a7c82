// Package rologging adapts github.com/rs/zerolog to the engine's
// ports.Logger contract, following the same adapter-behind-a-port shape the
// teacher codebase uses for its charmbracelet/log wrapper.
package rologging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roby-engine/roby/internal/ports"
)

// Options configures a Logger.
type Options struct {
	Writer    io.Writer
	Level     string // debug|info|warn|error, default info
	Component string
	Pretty    bool
}

// Logger implements ports.Logger using zerolog.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	if opts.Pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if opts.Component != "" {
		zl = zl.With().Str("component", opts.Component).Logger()
	}

	return &Logger{zl: zl}, nil
}

func (l *Logger) event(ctx context.Context, ev *zerolog.Event, msg string, fields []interface{}) {
	if id := ports.GetCorrelationID(ctx); id != "" {
		ev = ev.Str("correlation_id", id)
	}
	ev = applyFields(ev, fields)
	ev.Msg(msg)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.event(ctx, l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.event(ctx, l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...interface{}) {
	l.event(ctx, l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...interface{}) {
	l.event(ctx, l.zl.Error(), msg, fields)
}

func (l *Logger) With(fields ...interface{}) ports.Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &Logger{zl: ctx.Logger()}
}

func applyFields(ev *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, fields[i+1])
	}
	return ev
}

var _ ports.Logger = (*Logger)(nil)

// Noop returns a Logger that discards everything. The engine does not use
// it: roengine.New falls back to its own no-op logger when none is given.
func Noop() ports.Logger {
	l, _ := New(Options{Writer: io.Discard, Level: "error"})
	return l
}
