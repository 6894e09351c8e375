// Package httpserver is relay's HTTP gateway: JSON producer endpoints,
// polling, and streaming over Server-Sent Events or WebSocket.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
