package chatsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/rzbill/relay/internal/errs"
)

// chanSink records frames on a channel.
type chanSink struct {
	ctx    context.Context
	frames chan Frame

	mu      sync.Mutex
	failErr error
	flushes int
}

func newChanSink(ctx context.Context) *chanSink {
	return &chanSink{ctx: ctx, frames: make(chan Frame, 256)}
}

func (s *chanSink) Send(f Frame) error {
	s.mu.Lock()
	err := s.failErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.frames <- f
	return nil
}

func (s *chanSink) Context() context.Context { return s.ctx }

func (s *chanSink) Flush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func (s *chanSink) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return Frame{}
	}
}

// drainEvents collects frames for d and returns only event frames.
func (s *chanSink) drainEvents(d time.Duration) []Frame {
	var out []Frame
	deadline := time.After(d)
	for {
		select {
		case f := <-s.frames:
			if f.Type == FrameEvent {
				out = append(out, f)
			}
		case <-deadline:
			return out
		}
	}
}

func startStream(t *testing.T, svc *Service, since uint64, opts StreamOptions) (*chanSink, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sink := newChanSink(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.StreamSubscribe(ctx, since, opts, sink) }()
	t.Cleanup(cancel)
	return sink, cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("stream did not close")
		return nil
	}
}

func TestStreamBacklogThenNoDuplicates(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 20 * time.Millisecond, KeepAlive: time.Hour})
	ctx := context.Background()
	_, err := env.svc.Join(ctx, "alice")
	is.NoErr(err)
	for _, txt := range []string{"2", "3", "4", "5"} {
		_, err := env.svc.PostMessage(ctx, "alice", txt)
		is.NoErr(err)
	}

	sink, cancel, done := startStream(t, env.svc, 3, StreamOptions{})
	f := sink.next(t)
	is.Equal(f.Type, FrameEvent)
	is.Equal(f.Event.ID, uint64(4))
	f = sink.next(t)
	is.Equal(f.Event.ID, uint64(5))
	f = sink.next(t)
	is.Equal(f.Type, FrameUserCount)
	is.Equal(f.Count, 1)
	is.Equal(f.Users, []string{"alice"})

	// several poll intervals pass without new events
	is.Equal(len(sink.drainEvents(120*time.Millisecond)), 0)

	_, err = env.svc.PostMessage(ctx, "alice", "6")
	is.NoErr(err)
	f = sink.next(t)
	is.Equal(f.Event.ID, uint64(6))
	is.Equal(env.svc.ActiveStreams(), 1)

	cancel()
	is.NoErr(waitDone(t, done))
	is.Equal(env.svc.ActiveStreams(), 0)
}

func TestStreamPresenceFrameOnChange(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 20 * time.Millisecond, KeepAlive: time.Hour})
	ctx := context.Background()

	sink, _, _ := startStream(t, env.svc, 0, StreamOptions{})
	f := sink.next(t)
	is.Equal(f.Type, FrameUserCount)
	is.Equal(f.Count, 0)

	_, err := env.svc.Join(ctx, "bob")
	is.NoErr(err)
	f = sink.next(t)
	is.Equal(f.Type, FrameEvent)
	is.Equal(f.Event.Text, "bob joined the chat")
	f = sink.next(t)
	is.Equal(f.Type, FrameUserCount)
	is.Equal(f.Users, []string{"bob"})
}

func TestStreamKeepAlivePing(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: time.Hour, KeepAlive: 30 * time.Millisecond})

	sink, _, _ := startStream(t, env.svc, 0, StreamOptions{})
	is.Equal(sink.next(t).Type, FrameUserCount)
	is.Equal(sink.next(t).Type, FramePing)
}

func TestStreamWakesOnLocalAppend(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: time.Hour, KeepAlive: time.Hour, WakeOnAppend: true})

	sink, _, _ := startStream(t, env.svc, 0, StreamOptions{})
	is.Equal(sink.next(t).Type, FrameUserCount)

	ev, err := env.svc.PostMessage(context.Background(), "cy", "ping?")
	is.NoErr(err)
	f := sink.next(t)
	is.Equal(f.Type, FrameEvent)
	is.Equal(f.Event.ID, ev.ID)
}

func TestStreamFilterAdvancesWatermark(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 20 * time.Millisecond, KeepAlive: time.Hour})
	ctx := context.Background()
	_, err := env.svc.Join(ctx, "dora")
	is.NoErr(err)
	_, err = env.svc.PostMessage(ctx, "dora", "keep me")
	is.NoErr(err)

	sink, _, _ := startStream(t, env.svc, 0, StreamOptions{Filter: `kind == "message"`})
	f := sink.next(t)
	is.Equal(f.Event.ID, uint64(2))
	is.Equal(sink.next(t).Type, FrameUserCount)
	is.Equal(len(sink.drainEvents(100*time.Millisecond)), 0)
}

func TestStreamInvalidFilter(t *testing.T) {
	env := newTestEnv(t, Deps{})
	sink := newChanSink(context.Background())
	err := env.svc.StreamSubscribe(context.Background(), 0, StreamOptions{Filter: "kind =="}, sink)
	if !errors.Is(err, errs.ErrInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
	if len(sink.frames) != 0 {
		t.Fatalf("nothing may be written before the filter compiles")
	}
}

func TestStreamClosesOnStoreError(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 20 * time.Millisecond, KeepAlive: time.Hour})

	sink, _, done := startStream(t, env.svc, 0, StreamOptions{})
	is.Equal(sink.next(t).Type, FrameUserCount)

	env.store.fail.Store(true)
	err := waitDone(t, done)
	is.True(err != nil)
	is.True(errs.IsRetryable(err))
	is.Equal(env.svc.ActiveStreams(), 0)
}

func TestStreamClosesOnWriteError(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 20 * time.Millisecond, KeepAlive: time.Hour})

	sink, _, done := startStream(t, env.svc, 0, StreamOptions{})
	is.Equal(sink.next(t).Type, FrameUserCount)

	gone := errors.New("peer gone")
	sink.mu.Lock()
	sink.failErr = gone
	sink.mu.Unlock()
	_, err := env.svc.PostMessage(context.Background(), "eve", "anyone?")
	is.NoErr(err)
	is.True(errors.Is(waitDone(t, done), gone))
}

func TestStreamStopsWhenSinkContextEnds(t *testing.T) {
	is := is.New(t)
	env := newTestEnv(t, Deps{PollInterval: 10 * time.Millisecond, KeepAlive: 10 * time.Millisecond})

	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	sink := newChanSink(sinkCtx)
	done := make(chan error, 1)
	go func() { done <- env.svc.StreamSubscribe(context.Background(), 0, StreamOptions{}, sink) }()
	is.Equal(sink.next(t).Type, FrameUserCount)

	sinkCancel()
	is.NoErr(waitDone(t, done))
	// no writes after the stream returned
	n := len(sink.frames)
	time.Sleep(50 * time.Millisecond)
	is.Equal(len(sink.frames), n)
}
