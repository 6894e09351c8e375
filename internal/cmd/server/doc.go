// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the relay runtime with gRPC and HTTP servers, handling lifecycle and
// shutdown. It also runs the optional compaction schedule, watches the
// config file for hot-reloadable settings, and reports readiness to systemd.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
