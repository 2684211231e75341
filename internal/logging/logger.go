// Package logging builds the service zerolog logger and its HTTP and
// supervisor hooks.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Config selects level and output format.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New returns a logger for cfg. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "parking-monitor").Logger()
}

// SupervisorHook reports supervisor events through logger.
func SupervisorHook(logger zerolog.Logger) suture.EventHook {
	return func(event suture.Event) {
		entry := logger.Warn()
		if event.Type() == suture.EventTypeServicePanic {
			entry = logger.Error()
		}
		entry.Fields(event.Map()).Msg(event.String())
	}
}
