// Package testlog provides loggers for tests.
package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// EnvVar enables test logging on stderr when set to a zerolog level name.
const EnvVar = "LINKCHAT_TEST_LOG"

// New returns a logger for t. It is silent unless EnvVar names a level.
//
// Workers keep running for a short while after a test returns, so the
// logger writes to stderr instead of t.Log.
func New(t testing.TB) zerolog.Logger {
	t.Helper()

	level, ok := os.LookupEnv(EnvVar)
	if !ok || level == "" {
		return zerolog.Nop()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().
		Timestamp().
		Str("test", t.Name()).
		Logger()
}
