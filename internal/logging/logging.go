// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "LINKCHAT_LOG_LEVEL"
	EnvLogTimestamp = "LINKCHAT_LOG_TIMESTAMP"
	EnvLogNoColor   = "LINKCHAT_LOG_NOCOLOR"
	EnvLogJSON      = "LINKCHAT_LOG_JSON"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config describes how log lines are rendered.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
	Output    io.Writer
}

var configureOnce sync.Once

// Configure installs the logger for profile as log.Logger. Only the first
// call has an effect; later calls return the installed logger.
func Configure(profile Profile, app string) zerolog.Logger {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		ApplyEnv(&cfg)
		log.Logger = New(cfg).With().Str("app", app).Logger()
	})
	return log.Logger
}

// DefaultConfig returns the defaults for profile.
func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{
			Level:  zerolog.DebugLevel,
			Output: io.Discard,
		}
	default:
		return Config{
			Level:     zerolog.InfoLevel,
			Timestamp: true,
			Output:    os.Stderr,
		}
	}
}

// New builds a logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// ApplyEnv overrides cfg with the LINKCHAT_LOG_* environment variables.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

// ParseLevel maps a level name to a zerolog level. The second result is
// false for empty or unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
