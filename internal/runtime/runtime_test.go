package runtime

import (
	"context"
	"testing"

	natsserver "github.com/nats-io/nats-server/v2/test"

	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/event"
	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
)

func TestOpenCloseHealth(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Compact(context.Background()); err != nil {
		t.Fatalf("compact: %v", err)
	}
}

func TestPebbleBackendSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.Store.Codec = "msgpack"

	rt, err := Open(ctx, Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ev, err := rt.Factory().MakeMessage("alice", "hello")
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	if _, err := rt.Log().Append(ctx, ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt, err = Open(ctx, Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt.Close()
	evs, err := rt.Log().ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(evs) != 1 || evs[0].Text != "hello" || evs[0].Kind != event.KindMessage {
		t.Fatalf("unexpected events after reopen: %+v", evs)
	}
}

func TestMemoryBackendAppliesLimits(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Store.Backend = cfgpkg.BackendMemory
	cfg.MaxMessageLength = 5
	cfg.MaxHistory = 3

	rt, err := Open(context.Background(), Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Log().MaxHistory() != 3 {
		t.Fatalf("max history = %d", rt.Log().MaxHistory())
	}
	if _, err := rt.Factory().MakeMessage("alice", "too long"); err == nil {
		t.Fatalf("expected message length limit from config")
	}
}

func TestNATSBackend(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natsserver.RunServer(&opts)
	defer func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	}()

	cfg := cfgpkg.Default()
	cfg.Store.Backend = cfgpkg.BackendNATS
	cfg.Store.NATSURL = srv.ClientURL()

	ctx := context.Background()
	rt, err := Open(ctx, Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Presence().Join(ctx, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	n, err := rt.Presence().Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Store.Backend = cfgpkg.BackendPebble
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatalf("expected error without DataDir")
	}
	cfg.Room = "bad room"
	if _, err := Open(context.Background(), Options{DataDir: t.TempDir(), Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}
