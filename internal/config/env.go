package config

import (
	"os"
	"strconv"
)

// FromEnv overlays RELAY_* environment variables onto cfg. Malformed values
// are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("RELAY_ROOM"); v != "" {
		cfg.Room = v
	}
	setInt(&cfg.MaxHistory, "RELAY_MAX_HISTORY")
	setInt(&cfg.MaxMessageLength, "RELAY_MAX_MESSAGE_LENGTH")
	setInt(&cfg.UsernameMinLength, "RELAY_USERNAME_MIN_LENGTH")
	setInt(&cfg.UsernameMaxLength, "RELAY_USERNAME_MAX_LENGTH")
	setInt(&cfg.Stream.PollIntervalMs, "RELAY_STREAM_POLL_MS")
	setInt(&cfg.Stream.KeepAliveMs, "RELAY_STREAM_KEEPALIVE_MS")
	setInt(&cfg.Stream.StoreTimeoutMs, "RELAY_STREAM_STORE_TIMEOUT_MS")
	if v := os.Getenv("RELAY_STREAM_WAKE_ON_APPEND"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stream.WakeOnAppend = b
		}
	}
	if v := os.Getenv("RELAY_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("RELAY_STORE_CODEC"); v != "" {
		cfg.Store.Codec = v
	}
	if v := os.Getenv("RELAY_NATS_URL"); v != "" {
		cfg.Store.NATSURL = v
	}
	if v := os.Getenv("RELAY_NATS_BUCKET"); v != "" {
		cfg.Store.NATSBucket = v
	}
	if v := os.Getenv("RELAY_PRODUCER_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Producer.RatePerSec = f
		}
	}
	setInt(&cfg.Producer.Burst, "RELAY_PRODUCER_BURST")
	if v, ok := os.LookupEnv("RELAY_COMPACT_SCHEDULE"); ok {
		cfg.CompactSchedule = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RELAY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
