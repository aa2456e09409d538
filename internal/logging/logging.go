// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/config"
)

// New returns a logger writing to w, configured from cfg.
// LogFormat "json" writes one JSON object per line; anything else uses the
// human-readable console writer. Unknown levels fall back to info.
func New(cfg *config.Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	format := "text"
	if cfg != nil {
		level = ParseLevel(cfg.LogLevel)
		format = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
