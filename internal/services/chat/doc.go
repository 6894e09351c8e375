// Package chatsvc implements the room facade on top of the event log and
// presence manager. It is the single place where producer requests (join,
// leave, message, send, clear) are turned into stored events, and where
// consumers read them back, either by polling with a watermark or through a
// long-lived stream.
//
// Example:
//
//	svc := chatsvc.New(rt, logger)
//	res, _ := svc.Join(ctx, "alice")
//	_, _ = svc.PostMessage(ctx, "alice", "hello")
//	upd, _ := svc.GetUpdates(ctx, res.MessageID-1, chatsvc.PollOptions{})
//	_ = svc.StreamSubscribe(ctx, 0, chatsvc.StreamOptions{}, mySink)
package chatsvc

// Streaming notes
//
//   - Each stream is one goroutine that owns its poll and keep-alive tickers.
//     Cancelling the connection context stops both; nothing is written after
//     cancellation is observed.
//   - The poll interval bounds delivery latency for appends made by other
//     processes sharing the store. Appends made in this process also wake
//     streams immediately when stream.wakeOnAppend is set.
//   - A failed store read closes the stream. Clients reconnect with the last
//     id they saw and lose nothing still retained.
