// Package logging provides the structured logger shared by all godomain
// components. It is a thin wrapper around zerolog that adds component
// child loggers and console/JSON output selection.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string    // trace, debug, info, warn, error (default info)
	Format string    // "console" or "json" (default json)
	Output io.Writer // destination, defaults to stderr
}

// Logger wraps zerolog.Logger with godomain-specific construction.
type Logger struct {
	zerolog.Logger
}

// New creates a logger from the given configuration.
func New(cfg Config) Logger {
	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger()
	zlog = zlog.Level(parseLevel(cfg.Level))

	return Logger{zlog}
}

// Nop returns a logger that discards everything. Used as the default when
// a caller does not supply a logger.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}

// Component returns a child logger tagged with a component name.
func (l Logger) Component(name string) Logger {
	return Logger{l.With().Str("component", name).Logger()}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
