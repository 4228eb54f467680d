// SPDX-License-Identifier: MPL-2.0

// Package poshlog constructs the *log.Logger every C7-and-above
// component takes, mapping the CLI's --tracing_level flag onto
// charmbracelet/log's level scale.
package poshlog

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Level mirrors the --tracing_level flag's four allowed values
// (spec.md §6).
type Level string

const (
	LevelNone  Level = "none"
	LevelError Level = "error"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// ParseLevel validates a --tracing_level (or POSH_TRACING_LEVEL) value.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNone, LevelError, LevelInfo, LevelDebug:
		return Level(s), nil
	default:
		return "", fmt.Errorf("poshlog: unknown tracing level %q", s)
	}
}

// New builds a logger writing to w, prefixed with component, at the
// charmbracelet/log level Level maps to. LevelNone reports fatal-only,
// matching a pipeline that should stay silent unless something is
// badly wrong.
func New(w io.Writer, component string, level Level) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: component})
	switch level {
	case LevelNone:
		logger.SetLevel(log.FatalLevel)
	case LevelError:
		logger.SetLevel(log.ErrorLevel)
	case LevelInfo:
		logger.SetLevel(log.InfoLevel)
	case LevelDebug:
		logger.SetLevel(log.DebugLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
