// Package pebblestore wraps the embedded Pebble database used by relay's
// durable event store: fsync policy, batches, snapshots, prefix helpers and
// minimal metrics hooks.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/store",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("room/lobby/log/m"), meta, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore
