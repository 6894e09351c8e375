// Package eventlog implements the room's shared, bounded event log on top of
// an eventstore.Store.
//
// # Overview
//
// The log keeps at most MaxHistory events. Append stamps the event id and
// creation time inside the store's atomic step, serializes it with the
// configured codec and frames it as:
//
//	uvarint headerLen | header | payload | crc32c(header|payload)
//
// where header is the 8-byte big-endian id followed by the codec name. Reads
// verify the frame, the id and the codec; records failing any check are
// skipped and logged rather than failing the read.
//
//	l, _ := eventlog.New(store, eventlog.Options{MaxHistory: 100, Logger: logger})
//	ev, _ := l.Append(ctx, factory.MakeJoin("ann"))
//	evs, _ := l.ReadSince(ctx, watermark)
//
// # Notifications
//
// Notify returns a channel closed on the next local append or clear. Streams
// use it to wake early; correctness never depends on it, since appends from
// other processes sharing the store are only found by re-reading.
package eventlog
