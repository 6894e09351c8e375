package eventlog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/relay/internal/codec"
	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/event"
	"github.com/rzbill/relay/internal/eventstore"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// DefaultMaxHistory is the number of events retained when Options leaves it
// unset.
const DefaultMaxHistory = 100

// Options configures a Log.
type Options struct {
	// MaxHistory bounds the number of retained events.
	MaxHistory int
	// Codec serializes new events. Records written with another registered
	// codec stay readable.
	Codec codec.Codec
	// Now stamps CreatedAt. Defaults to time.Now.
	Now    func() time.Time
	Logger logpkg.Logger
}

// Log is the room's bounded event log.
type Log struct {
	store      eventstore.Store
	maxHistory int
	codec      codec.Codec
	now        func() time.Time
	logger     logpkg.Logger

	stampMu sync.Mutex
	lastAt  time.Time

	notifyMu sync.Mutex
	notifyCh chan struct{}

	corrupt atomic.Uint64
}

// New builds a Log over store.
func New(store eventstore.Store, opts Options) (*Log, error) {
	if store == nil {
		return nil, errors.New("eventlog: nil store")
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Log{
		store:      store,
		maxHistory: opts.MaxHistory,
		codec:      opts.Codec,
		now:        opts.Now,
		logger:     opts.Logger,
		notifyCh:   make(chan struct{}),
	}, nil
}

// MaxHistory returns the retention bound.
func (l *Log) MaxHistory() int { return l.maxHistory }

// stampTime never returns a time earlier than one it already returned, so
// CreatedAt follows id order even if the wall clock steps back.
func (l *Log) stampTime() time.Time {
	l.stampMu.Lock()
	defer l.stampMu.Unlock()
	at := l.now()
	if at.Before(l.lastAt) {
		at = l.lastAt
	}
	l.lastAt = at
	return at
}

// Append commits ev, trimming the log to MaxHistory in the same step, and
// returns it with its assigned id and creation time.
func (l *Log) Append(ctx context.Context, ev event.Event) (event.Event, error) {
	var stamped event.Event
	_, err := l.store.Append(ctx, l.maxHistory, func(id uint64) ([]byte, error) {
		stamped = ev.Stamp(id, l.stampTime())
		payload, err := l.codec.Marshal(stamped)
		if err != nil {
			return nil, err
		}
		return EncodeRecord(recordHeader(id, l.codec.Name()), payload), nil
	})
	if err != nil {
		return event.Event{}, errs.Transient("append event", err)
	}
	l.broadcast()
	l.logger.Debug("event appended",
		logpkg.Uint64("id", stamped.ID),
		logpkg.Str("kind", string(stamped.Kind)),
	)
	return stamped, nil
}

// Clear drops every retained event. Ids are never reused afterwards.
func (l *Log) Clear(ctx context.Context) error {
	if err := l.store.Clear(ctx); err != nil {
		return errs.Transient("clear log", err)
	}
	l.broadcast()
	return nil
}

// CorruptSkipped reports how many corrupt records reads have skipped since
// the Log was created.
func (l *Log) CorruptSkipped() uint64 { return l.corrupt.Load() }
