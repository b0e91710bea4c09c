// Package xlog provides the engine's package-level loggers: a general
// operational log and a separate changelog stream for catalog mutations,
// mirroring the two-logger split (LOG / CHANGELOG) used throughout
// original_source/lib/core/server.go.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package xlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var (
	// Log is the general operational logger.
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	// Changelog records every applied catalog UPDATE/DELETE, kept separate
	// so operators can audit inventory mutations without general log noise.
	Changelog = zerolog.New(io.Discard).With().Timestamp().Logger()
)

// SetLevel adjusts the global minimum level for Log.
func SetLevel(lvl zerolog.Level) {
	zerolog.SetGlobalLevel(lvl)
}

// OpenChangelog redirects the changelog stream to the given writer (a file,
// typically). Passing nil disables it.
func OpenChangelog(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	Changelog = zerolog.New(w).With().Timestamp().Logger()
}
