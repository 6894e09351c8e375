package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.MaxHistory != 100 || cfg.MaxMessageLength != 2000 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.PollInterval() != 3*time.Second || cfg.KeepAliveInterval() != 30*time.Second {
		t.Fatalf("unexpected stream intervals: %v %v", cfg.PollInterval(), cfg.KeepAliveInterval())
	}
	if cfg.Store.Backend != BackendPebble {
		t.Fatalf("default backend = %s", cfg.Store.Backend)
	}
}

func TestKeepAliveDefaultsToTenPolls(t *testing.T) {
	cfg := Default()
	cfg.Stream.PollIntervalMs = 2000
	cfg.Stream.KeepAliveMs = 0
	if got := cfg.KeepAliveInterval(); got != 20*time.Second {
		t.Fatalf("keep-alive = %v", got)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.json")
	data := []byte(`{"room":"ops","maxHistory":50,"stream":{"pollIntervalMs":2000},"store":{"backend":"memory","codec":"msgpack"}}`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Room = "ops"
	want.MaxHistory = 50
	want.Stream.PollIntervalMs = 2000
	want.Store.Backend = BackendMemory
	want.Store.Codec = "msgpack"
	if d := cmp.Diff(want, cfg); d != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", d)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.yaml")
	data := []byte("room: support\nproducer:\n  ratePerSec: 5\n  burst: 10\ncompactSchedule: \"@hourly\"\nlog:\n  level: debug\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Room != "support" || cfg.Producer.RatePerSec != 5 || cfg.Producer.Burst != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CompactSchedule != "@hourly" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected schedule/log: %+v", cfg)
	}
	if cfg.MaxHistory != 100 {
		t.Fatalf("unset fields keep defaults")
	}
}

func TestLoadRejectsUnknownAndInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown.json": `{"rooms":"x"}`,
		"badroom.json": `{"room":"a b"}`,
		"backend.yaml": "store:\n  backend: redis\n",
		"history.json": `{"maxHistory":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(name, []byte(body)); err == nil {
				t.Fatalf("expected error for %s", body)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	cfg, err := Load("")
	if err != nil || cfg.Room != Default().Room {
		t.Fatalf("empty path should yield defaults: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("RELAY_ROOM", "staging")
	t.Setenv("RELAY_MAX_HISTORY", "25")
	t.Setenv("RELAY_STREAM_POLL_MS", "2500")
	t.Setenv("RELAY_STORE", "nats")
	t.Setenv("RELAY_NATS_URL", "nats://nats:4222")
	t.Setenv("RELAY_PRODUCER_RATE", "1.5")
	t.Setenv("RELAY_STREAM_WAKE_ON_APPEND", "false")
	t.Setenv("RELAY_MAX_MESSAGE_LENGTH", "not-a-number")

	FromEnv(&cfg)
	if cfg.Room != "staging" || cfg.MaxHistory != 25 || cfg.Stream.PollIntervalMs != 2500 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Store.Backend != BackendNATS || cfg.Store.NATSURL != "nats://nats:4222" {
		t.Fatalf("store overrides not applied: %+v", cfg.Store)
	}
	if cfg.Producer.RatePerSec != 1.5 || cfg.Stream.WakeOnAppend {
		t.Fatalf("producer/stream overrides not applied: %+v", cfg)
	}
	if cfg.MaxMessageLength != 2000 {
		t.Fatalf("malformed values must be ignored")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.json")
	if err := os.WriteFile(file, []byte(`{"log":{"level":"info"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, file, nil, func(c Config) { got <- c })
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(file, []byte(`{"log":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case c := <-got:
		if !strings.EqualFold(c.Log.Level, "debug") {
			t.Fatalf("reloaded level = %q", c.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
