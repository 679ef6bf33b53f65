// Package logging provides centralized zerolog-based structured logging for
// Sentry Fleet. Every component logs through this package so output format,
// level, and correlation fields stay uniform across the control plane.
//
// Initialize once at startup:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
// Then log through the package-level helpers:
//
//	logging.Info().Str("scope", scope).Msg("compile started")
//	logging.Error().Err(err).Msg("compile failed")
//
// Never log a hub api_token or a device pairing_code at any level.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic.
	Level string
	// Format is the output format: json or console.
	Format string
	// Caller includes caller file and line number in logs.
	Caller bool
	// Output is the writer for log output. Defaults to os.Stderr.
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

//nolint:gochecknoinits // ensures a working logger before explicit Init()
func init() {
	initLogger(DefaultConfig())
}

// Init (re)configures the global logger. Safe to call repeatedly.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log = ctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With creates a child-logger context for attaching component-scoped fields.
//
//	compilerLog := logging.With().Str("component", "compiler").Logger()
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

func Trace() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Trace() }
func Debug() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Debug() }
func Info() *zerolog.Event  { mu.RLock(); defer mu.RUnlock(); return log.Info() }
func Warn() *zerolog.Event  { mu.RLock(); defer mu.RUnlock(); return log.Warn() }
func Error() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Error() }
func Fatal() *zerolog.Event { mu.RLock(); defer mu.RUnlock(); return log.Fatal() }

func Err(err error) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Err(err)
}

// NewTestLogger returns a logger writing to w, for use in tests that want to
// assert on log output.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
