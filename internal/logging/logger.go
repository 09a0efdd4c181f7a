// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/tomtom215/patrolmap/internal/config"
)

// Output formats accepted by LOG_FORMAT.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// timeFormat keeps milliseconds so events of one refresh pass stay ordered.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Identity is stamped on every line the global logger writes.
type Identity struct {
	Service     string
	Version     string
	Environment string
}

// Config holds logging configuration.
type Config struct {
	// Level is trace, debug, info, warn, error, fatal, panic or disabled.
	// Empty means info.
	Level string

	// Format is json or console. Empty means json.
	Format string

	// Caller adds file:line to every line.
	Caller bool

	Identity Identity

	// Output defaults to os.Stderr.
	Output io.Writer
}

// FromLoggingConfig maps the LOG_* settings onto a Config.
func FromLoggingConfig(cfg config.LoggingConfig, id Identity) Config {
	return Config{
		Level:    cfg.Level,
		Format:   cfg.Format,
		Caller:   cfg.Caller,
		Identity: id,
	}
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

//nolint:gochecknoinits // logging must work before an explicit Init call
func init() {
	zerolog.TimeFieldFormat = timeFormat
	base, _, _ = build(Config{})
}

// Init replaces the global logger. An unknown level falls back to info and
// an unknown format to JSON; both are reported in the returned error while
// the fallback stays installed.
func Init(cfg Config) error {
	l, level, err := build(cfg)
	mu.Lock()
	base = l
	mu.Unlock()
	zerolog.SetGlobalLevel(level)
	return err
}

func build(cfg Config) (zerolog.Logger, zerolog.Level, error) {
	level, levelErr := ParseLevel(cfg.Level)
	out, formatErr := writerFor(cfg)

	ctx := zerolog.New(out).With().Timestamp()
	for _, f := range []struct{ key, value string }{
		{"service", cfg.Identity.Service},
		{"version", cfg.Identity.Version},
		{"environment", cfg.Identity.Environment},
	} {
		if f.value != "" {
			ctx = ctx.Str(f.key, f.value)
		}
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), level, errors.Join(levelErr, formatErr)
}

func writerFor(cfg Config) (io.Writer, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		return out, nil
	case FormatConsole:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000", NoColor: !isTerminal(out)}, nil
	default:
		return out, fmt.Errorf("unknown log format %q, using %s", cfg.Format, FormatJSON)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level. "warning" is an
// alias of warn. Unknown values return info and an error.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q, using info", s)
	}
	return level, nil
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current()
}

// SetLogger replaces the global logger, typically with NewTestLogger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// With starts a child logger context of the global logger.
func With() zerolog.Context { return current().With() }

// Trace starts a trace message.
func Trace() *zerolog.Event { return current().Trace() }

// Debug starts a debug message.
func Debug() *zerolog.Event { return current().Debug() }

// Info starts an info message.
//
//	logging.Info().Str("kind", "OFFICER").Int("count", n).Msg("Snapshot replaced")
func Info() *zerolog.Event { return current().Info() }

// Warn starts a warning.
func Warn() *zerolog.Event { return current().Warn() }

// Error starts an error message.
func Error() *zerolog.Event { return current().Error() }

// Fatal starts a message that exits the process with status 1 once sent.
func Fatal() *zerolog.Event { return current().Fatal() }

// GetLevel returns the global minimum level.
func GetLevel() zerolog.Level {
	return zerolog.GlobalLevel()
}

// SetLevel changes the global minimum level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetLevelString applies a LOG_LEVEL value at runtime. An unknown value
// leaves the current level in place and is returned as an error.
func SetLevelString(s string) error {
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// NewTestLogger returns a timestamped JSON logger writing to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
