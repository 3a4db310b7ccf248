// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // json | text | pretty
}

// New builds a zerolog.Logger configured for structured (Loki-compatible)
// JSON output, or a human-readable console writer in "pretty" mode.
func New(opts Options) zerolog.Logger {
	var output io.Writer = os.Stdout

	var level zerolog.Level
	switch opts.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if opts.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "seckill-core").
		Logger()
}

// WithStack logs err with a full stack trace and the given fields.
// Nothing in the HTTP error path calls it: writeError returns Internal
// errors in the envelope without logging them, and only the recovery
// middleware logs a stack (with the path, not the request id).
func WithStack(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err).Str("stack_trace", string(debug.Stack()))
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
