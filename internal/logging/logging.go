// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog level and writer. In development
// (MOSAICMQ_ENV=dev) it pretty-prints to stderr; otherwise it emits
// newline-delimited JSON suitable for log shipping.
func Init(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if os.Getenv("MOSAICMQ_ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// Component returns a child logger tagged with the given component name,
// the unit every package in this repo logs through.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
