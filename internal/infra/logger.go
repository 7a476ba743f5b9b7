package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger every component receives.
type Logger = zerolog.Logger

// NewLogger writes JSON to stdout, or colored console output in development.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, "")
}

// ServiceLogger is NewLogger tagged with the binary name and honoring
// LOG_LEVEL when it names a valid zerolog level.
func (c *Config) ServiceLogger(service string) Logger {
	l := newLogger(os.Stdout, c.AppEnv, c.LogLevel)
	return l.With().Str("service", service).Logger()
}

func newLogger(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil && parsed != zerolog.NoLevel {
			lvl = parsed
		}
	}
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
