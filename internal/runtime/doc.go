// Package runtime wires storage, config, and the room components into a
// single relay process. It opens the configured store backend (pebble,
// memory or a NATS key-value bucket) and builds the event log, presence
// manager and event factory on top of it.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	ev, _ := rt.Factory().MakeMessage("alice", "hello")
//	_, _ = rt.Log().Append(ctx, ev)
package runtime
