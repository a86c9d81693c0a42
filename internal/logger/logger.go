// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. format "console" gives human-readable,
// colorized output for development; anything else writes JSON lines.
func Init(level, format string) error {
	return InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	// Include the caller's file and line number
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}
