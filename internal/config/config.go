package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Room names the single shared chat room. Used as the storage key prefix.
	Room              string         `json:"room"`
	MaxHistory        int            `json:"maxHistory"`
	MaxMessageLength  int            `json:"maxMessageLength"`
	UsernameMinLength int            `json:"usernameMinLength"`
	UsernameMaxLength int            `json:"usernameMaxLength"`
	Stream            StreamConfig   `json:"stream"`
	Store             StoreConfig    `json:"store"`
	Producer          ProducerConfig `json:"producer"`
	// CompactSchedule is a cron expression for storage compaction. Empty disables it.
	CompactSchedule string    `json:"compactSchedule"`
	Log             LogConfig `json:"log"`
}

// StreamConfig tunes streaming delivery.
type StreamConfig struct {
	// PollIntervalMs is how often a stream re-reads the log.
	PollIntervalMs int `json:"pollIntervalMs"`
	// KeepAliveMs is the ping interval. Zero means ten poll intervals.
	KeepAliveMs int `json:"keepAliveMs"`
	// StoreTimeoutMs bounds every store call made by a stream.
	StoreTimeoutMs int `json:"storeTimeoutMs"`
	// WakeOnAppend lets streams re-read as soon as this process appends
	// instead of waiting for the next poll.
	WakeOnAppend bool `json:"wakeOnAppend"`
}

// StoreConfig selects and configures the event store backend.
type StoreConfig struct {
	// Backend is pebble, memory or nats.
	Backend string `json:"backend"`
	// Codec serializes stored events: json or msgpack.
	Codec      string `json:"codec"`
	NATSURL    string `json:"natsUrl"`
	NATSBucket string `json:"natsBucket"`
}

// ProducerConfig limits producer requests per client address.
type ProducerConfig struct {
	// RatePerSec is the sustained request rate. Zero disables limiting.
	RatePerSec float64 `json:"ratePerSec"`
	Burst      int     `json:"burst"`
}

// LogConfig holds the hot-reloadable logging settings.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	BackendPebble = "pebble"
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

var roomRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Room:              "lobby",
		MaxHistory:        100,
		MaxMessageLength:  2000,
		UsernameMinLength: 2,
		UsernameMaxLength: 30,
		Stream: StreamConfig{
			PollIntervalMs: 3000,
			KeepAliveMs:    30000,
			StoreTimeoutMs: 5000,
			WakeOnAppend:   true,
		},
		Store: StoreConfig{
			Backend:    BackendPebble,
			Codec:      "json",
			NATSURL:    "nats://127.0.0.1:4222",
			NATSBucket: "relay",
		},
		Producer: ProducerConfig{RatePerSec: 20, Burst: 40},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !roomRegex.MatchString(c.Room) {
		return fmt.Errorf("config: room %q must match %s", c.Room, roomRegex)
	}
	if c.MaxHistory <= 0 {
		return errors.New("config: maxHistory must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return errors.New("config: maxMessageLength must be positive")
	}
	if c.UsernameMinLength <= 0 || c.UsernameMaxLength < c.UsernameMinLength {
		return errors.New("config: username length bounds are invalid")
	}
	if c.Stream.PollIntervalMs <= 0 {
		return errors.New("config: stream.pollIntervalMs must be positive")
	}
	if c.Stream.KeepAliveMs < 0 || c.Stream.StoreTimeoutMs < 0 {
		return errors.New("config: stream intervals must not be negative")
	}
	switch c.Store.Backend {
	case BackendPebble, BackendMemory, BackendNATS:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Store.Codec {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("config: unknown store codec %q", c.Store.Codec)
	}
	if c.Producer.RatePerSec < 0 || c.Producer.Burst < 0 {
		return errors.New("config: producer limits must not be negative")
	}
	return nil
}

// PollInterval returns the stream re-check interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMs) * time.Millisecond
}

// KeepAliveInterval returns the stream ping interval.
func (c Config) KeepAliveInterval() time.Duration {
	if c.Stream.KeepAliveMs <= 0 {
		return 10 * c.PollInterval()
	}
	return time.Duration(c.Stream.KeepAliveMs) * time.Millisecond
}

// StoreTimeout bounds store calls made on behalf of a stream.
func (c Config) StoreTimeout() time.Duration {
	if c.Stream.StoreTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Stream.StoreTimeoutMs) * time.Millisecond
}

// Load reads configuration from a JSON or YAML file (by extension) over the
// defaults. If path is empty, returns defaults. Unknown fields are rejected.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(path, b)
}

// Parse decodes data as the format implied by path's extension.
func Parse(path string, data []byte) (Config, error) {
	j, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s %s: %w", format, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
