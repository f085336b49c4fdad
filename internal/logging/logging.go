// Package logging sets up the process-wide zerolog logger, mirroring the
// teacher's cmd/cryptorun/main.go: a pretty ConsoleWriter for an
// interactive TTY, structured JSON otherwise, with the global
// zerolog.TimeFieldFormat fixed to RFC3339.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the global logger setup.
type Options struct {
	// JSON forces structured JSON output even on a TTY, for container/CI
	// runs that pipe stderr into a log aggregator.
	JSON bool
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	// Empty means "info".
	Level string
}

// Init installs the process-wide logger per Options. Call once from main.
func Init(opts Options) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	fi, err := os.Stderr.Stat()
	interactive := err == nil && fi.Mode()&os.ModeCharDevice != 0
	if opts.JSON || !interactive {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
