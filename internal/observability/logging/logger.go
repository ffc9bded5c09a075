// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	cfg := Config{
		Level:  "info",
		Format: "json",
	}
	if v := os.Getenv("SUBTITLE_LOG_LEVEL"); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if os.Getenv("ENV") == "dev" {
		cfg.Format = "console"
	}
	return cfg
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "live-subtitle-pipeline").
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithUtterance returns a logger with utterance context.
func WithUtterance(component string, sequenceNo uint64, utteranceID string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Uint64("sequenceNo", sequenceNo).
		Str("utteranceId", utteranceID).
		Logger()
}
