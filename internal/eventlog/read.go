package eventlog

import (
	"context"
	"fmt"

	"github.com/rzbill/relay/internal/codec"
	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/event"
	"github.com/rzbill/relay/internal/eventstore"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Snapshot is one consistent read of the log.
type Snapshot struct {
	// Events are the decodable retained events, oldest first.
	Events []event.Event
	// HighestID is the largest retained id, counting records that failed to
	// decode, 0 when the log is empty.
	HighestID uint64
	// Retained counts stored records including corrupt ones.
	Retained int
	// Members is the presence set read with the events. Only View fills it.
	Members []string
}

// Since returns the events with id greater than watermark.
func (s Snapshot) Since(watermark uint64) []event.Event {
	out := make([]event.Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.ID > watermark {
			out = append(out, ev)
		}
	}
	return out
}

// Snapshot reads the whole log once.
func (l *Log) Snapshot(ctx context.Context) (Snapshot, error) {
	recs, err := l.store.Range(ctx)
	if err != nil {
		return Snapshot{}, errs.Transient("read log", err)
	}
	return l.decodeAll(recs), nil
}

// View reads the log and the presence set as of the same instant.
func (l *Log) View(ctx context.Context) (Snapshot, error) {
	v, err := l.store.View(ctx)
	if err != nil {
		return Snapshot{}, errs.Transient("read room", err)
	}
	snap := l.decodeAll(v.Records)
	snap.Members = v.Members
	if snap.Members == nil {
		snap.Members = []string{}
	}
	return snap, nil
}

func (l *Log) decodeAll(recs []eventstore.Record) Snapshot {
	snap := Snapshot{Events: make([]event.Event, 0, len(recs)), Retained: len(recs)}
	for _, rec := range recs {
		if rec.ID > snap.HighestID {
			snap.HighestID = rec.ID
		}
		ev, err := l.decode(rec)
		if err != nil {
			l.corrupt.Add(1)
			l.logger.Warn("skipping corrupt record", logpkg.Uint64("id", rec.ID), logpkg.Err(err))
			continue
		}
		snap.Events = append(snap.Events, ev)
	}
	return snap
}

func (l *Log) decode(rec eventstore.Record) (event.Event, error) {
	dec, err := DecodeRecord(rec.Data)
	if err != nil {
		return event.Event{}, err
	}
	id, codecName, err := parseHeader(dec.Header)
	if err != nil {
		return event.Event{}, err
	}
	if id != rec.ID {
		return event.Event{}, fmt.Errorf("header id %d does not match key id %d", id, rec.ID)
	}
	c, err := codec.Get(codecName)
	if err != nil {
		return event.Event{}, err
	}
	var ev event.Event
	if err := c.Unmarshal(dec.Payload, &ev); err != nil {
		return event.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	if ev.ID != rec.ID || !ev.Kind.Valid() {
		return event.Event{}, fmt.Errorf("payload carries id %d kind %q", ev.ID, ev.Kind)
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}

// ReadAll returns every retained event, oldest first.
func (l *Log) ReadAll(ctx context.Context) ([]event.Event, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Events, nil
}

// ReadSince returns the retained events with id greater than watermark, in
// ascending id order. Repeated calls return the same result until the log
// changes.
func (l *Log) ReadSince(ctx context.Context, watermark uint64) ([]event.Event, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Since(watermark), nil
}

// HighestID returns the largest retained id, 0 when empty.
func (l *Log) HighestID(ctx context.Context) (uint64, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.HighestID, nil
}
