package chatsvc

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rzbill/relay/internal/errs"
	logpkg "github.com/rzbill/relay/pkg/log"
)

type streamState int32

const (
	stateConnecting streamState = iota
	stateActive
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// streamConn is the per-connection state owned by one StreamSubscribe call.
type streamConn struct {
	id        string
	state     streamState
	watermark uint64
	users     []string
	sentUsers bool
	filter    celFilter
	sink      StreamSink
	wake      <-chan struct{}
	delivered uint64
}

// StreamSubscribe pushes events newer than watermark to sink until the
// context or the sink's context is cancelled, a write fails, or the store
// fails. It sends the backlog and a presence frame first, then re-reads the
// log every poll interval and pings every keep-alive interval. It returns
// nil when the connection was cancelled.
func (s *Service) StreamSubscribe(ctx context.Context, watermark uint64, opts StreamOptions, sink StreamSink) error {
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sink.Context(), cancel)
	defer stop()

	c := &streamConn{id: newConnID(), state: stateConnecting, watermark: watermark, filter: filter, sink: sink}
	logger := s.logger.With(logpkg.Str("conn", c.id))
	s.addStream(c)
	defer s.removeStream(c)
	logger.Debug("stream connecting", logpkg.Uint64("since", watermark))

	err = s.runStream(ctx, c)
	c.state = stateClosed
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		logger.Debug("stream closed", logpkg.Uint64("delivered", c.delivered), logpkg.Uint64("watermark", c.watermark))
		return nil
	}
	logger.Warn("stream closed", logpkg.Uint64("delivered", c.delivered), logpkg.Uint64("watermark", c.watermark), logpkg.Err(err))
	return err
}

func (s *Service) runStream(ctx context.Context, c *streamConn) error {
	if err := s.push(ctx, c); err != nil {
		return err
	}
	c.state = stateActive

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			err = s.push(ctx, c)
		case <-c.wake:
			err = s.push(ctx, c)
		case <-keepAlive.C:
			if err = send(ctx, c.sink, Frame{Type: FramePing}); err == nil {
				err = c.sink.Flush()
			}
		}
		if err != nil {
			return err
		}
	}
}

// push delivers everything newer than the connection's watermark and a
// presence frame when membership changed since the last one.
func (s *Service) push(ctx context.Context, c *streamConn) error {
	if s.wakeOnAppend {
		c.wake = s.log.Notify()
	}
	rctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	snap, err := s.log.View(rctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Transient("stream read", err)
	}

	sent := 0
	for _, ev := range snap.Since(c.watermark) {
		if !c.filter.Eval(ev) {
			continue
		}
		if err := send(ctx, c.sink, Frame{Type: FrameEvent, Event: ev}); err != nil {
			return err
		}
		sent++
	}
	c.delivered += uint64(sent)
	if snap.HighestID > c.watermark {
		c.watermark = snap.HighestID
	}
	users := snap.Members
	if !c.sentUsers || !slices.Equal(users, c.users) {
		if err := send(ctx, c.sink, Frame{Type: FrameUserCount, Count: len(users), Users: users}); err != nil {
			return err
		}
		c.users = users
		c.sentUsers = true
		sent++
	}
	if sent == 0 {
		return nil
	}
	return c.sink.Flush()
}

func send(ctx context.Context, sink StreamSink, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return sink.Send(f)
}
