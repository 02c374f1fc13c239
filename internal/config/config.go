// Package config loads endpoint settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/logging"
	"github.com/omochice/linkchat/internal/transport"
	"github.com/omochice/linkchat/pkg/protocol"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config holds the settings shared by the server and the clients.
type Config struct {
	LocalID            string
	Listen             string
	WSListen           string
	HeartbeatInterval  time.Duration
	HeartbeatMaxMisses int
	QueueSize          int
	MaxFrameSize       int
	DrainTimeout       time.Duration
	HandshakeTimeout   time.Duration
	LogLevel           string
}

type fileConfig struct {
	LocalID            string `toml:"local_id"`
	Listen             string `toml:"listen"`
	WSListen           string `toml:"ws_listen"`
	HeartbeatInterval  string `toml:"heartbeat_interval"`
	HeartbeatMaxMisses int    `toml:"heartbeat_max_misses"`
	QueueSize          int    `toml:"queue_size"`
	MaxFrameSize       int    `toml:"max_frame_size"`
	DrainTimeout       string `toml:"drain_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	LogLevel           string `toml:"log_level"`
}

// DefaultConfig returns the built-in settings with a freshly generated
// local id.
func DefaultConfig() Config {
	return Config{
		LocalID:            NewLocalID(),
		Listen:             ":8080",
		HeartbeatInterval:  chat.DefaultHeartbeatInterval,
		HeartbeatMaxMisses: chat.DefaultMaxMisses,
		QueueSize:          chat.DefaultQueueSize,
		MaxFrameSize:       chat.DefaultMaxFrameSize,
		DrainTimeout:       chat.DefaultDrainTimeout,
		HandshakeTimeout:   transport.DefaultHandshakeTimeout,
		LogLevel:           "info",
	}
}

// NewLocalID returns a random identifier shaped like a locally
// administered MAC address, e.g. "06:1F:A3:5C:00:9B".
func NewLocalID() string {
	u := uuid.New()
	b := u[:6]
	b[0] = (b[0] | 0x02) &^ 0x01
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// Load reads path on top of DefaultConfig. Keys missing from the file keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("local_id") {
		cfg.LocalID = strings.ToUpper(strings.TrimSpace(raw.LocalID))
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("ws_listen") {
		cfg.WSListen = strings.TrimSpace(raw.WSListen)
	}
	if meta.IsDefined("heartbeat_interval") {
		if cfg.HeartbeatInterval, err = parseDuration("heartbeat_interval", raw.HeartbeatInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("heartbeat_max_misses") {
		cfg.HeartbeatMaxMisses = raw.HeartbeatMaxMisses
	}
	if meta.IsDefined("queue_size") {
		cfg.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("drain_timeout") {
		if cfg.DrainTimeout, err = parseDuration("drain_timeout", raw.DrainTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("handshake_timeout") {
		if cfg.HandshakeTimeout, err = parseDuration("handshake_timeout", raw.HandshakeTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case !protocol.ValidSenderID(c.LocalID):
		return fmt.Errorf("%w: local_id %q must be %d bytes", ErrInvalidConfig, c.LocalID, protocol.SenderLen)
	case c.HeartbeatInterval < 0:
		return fmt.Errorf("%w: heartbeat_interval must not be negative", ErrInvalidConfig)
	case c.HeartbeatMaxMisses < 1:
		return fmt.Errorf("%w: heartbeat_max_misses must be at least 1", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be at least 1", ErrInvalidConfig)
	case c.MaxFrameSize < protocol.HeaderLen:
		return fmt.Errorf("%w: max_frame_size must be at least %d", ErrInvalidConfig, protocol.HeaderLen)
	case c.DrainTimeout < 0 || c.HandshakeTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
		}
	}
	return nil
}

// ManagerOptions returns the chat.Manager options for c.
func (c Config) ManagerOptions(logger zerolog.Logger) []chat.Option {
	return []chat.Option{
		chat.WithQueueSize(c.QueueSize),
		chat.WithMaxFrameSize(c.MaxFrameSize),
		chat.WithHeartbeat(c.HeartbeatInterval, c.HeartbeatMaxMisses),
		chat.WithDrainTimeout(c.DrainTimeout),
		chat.WithLogger(logger),
	}
}
