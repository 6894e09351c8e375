package eventlog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matryer/is"

	"github.com/rzbill/relay/internal/codec"
	"github.com/rzbill/relay/internal/errs"
	"github.com/rzbill/relay/internal/event"
	"github.com/rzbill/relay/internal/eventstore"
	logpkg "github.com/rzbill/relay/pkg/log"
)

var factory = event.NewFactory()

func newTestLog(t *testing.T, opts Options) (*Log, *eventstore.Memory) {
	t.Helper()
	store := eventstore.NewMemory()
	l, err := New(store, opts)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	return l, store
}

func eventIDs(evs []event.Event) []uint64 {
	out := make([]uint64, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}

func appendMessages(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev, err := factory.MakeMessage("bob", "hello")
		if err != nil {
			t.Fatalf("make: %v", err)
		}
		if _, err := l.Append(context.Background(), ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestAppendStampsIDAndTime(t *testing.T) {
	is := is.New(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLog(t, Options{Now: func() time.Time { return at }})

	ev, err := l.Append(context.Background(), factory.MakeJoin("ann"))
	is.NoErr(err)
	is.Equal(ev.ID, uint64(1))
	is.True(ev.CreatedAt.Equal(at))

	all, err := l.ReadAll(context.Background())
	is.NoErr(err)
	if d := cmp.Diff([]event.Event{ev}, all); d != "" {
		t.Fatalf("read back (-want +got):\n%s", d)
	}
}

func TestTrimToMaxHistory(t *testing.T) {
	is := is.New(t)
	l, _ := newTestLog(t, Options{MaxHistory: 100})
	appendMessages(t, l, 105)

	all, err := l.ReadAll(context.Background())
	is.NoErr(err)
	is.Equal(len(all), 100)
	is.Equal(all[0].ID, uint64(6))
	is.Equal(all[99].ID, uint64(105))

	hi, err := l.HighestID(context.Background())
	is.NoErr(err)
	is.Equal(hi, uint64(105))
}

func TestReadSince(t *testing.T) {
	is := is.New(t)
	l, _ := newTestLog(t, Options{})
	appendMessages(t, l, 5)
	ctx := context.Background()

	got, err := l.ReadSince(ctx, 3)
	is.NoErr(err)
	is.Equal(eventIDs(got), []uint64{4, 5})

	again, err := l.ReadSince(ctx, 3)
	is.NoErr(err)
	is.Equal(eventIDs(again), eventIDs(got))

	none, err := l.ReadSince(ctx, 5)
	is.NoErr(err)
	is.Equal(len(none), 0)

	all, err := l.ReadSince(ctx, 0)
	is.NoErr(err)
	is.Equal(len(all), 5)
}

func TestEmptyLog(t *testing.T) {
	is := is.New(t)
	l, _ := newTestLog(t, Options{})
	hi, err := l.HighestID(context.Background())
	is.NoErr(err)
	is.Equal(hi, uint64(0))
	all, err := l.ReadAll(context.Background())
	is.NoErr(err)
	is.Equal(len(all), 0)
}

func TestConcurrentAppendsAllVisibleOnce(t *testing.T) {
	l, _ := newTestLog(t, Options{MaxHistory: 1000})
	const writers, per = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				ev, _ := factory.MakeMessage("w", "x")
				if _, err := l.Append(context.Background(), ev); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	all, err := l.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != writers*per {
		t.Fatalf("got %d events, want %d", len(all), writers*per)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("ids not strictly ascending at %d: %d then %d", i, all[i-1].ID, all[i].ID)
		}
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("created_at regressed at id %d", all[i].ID)
		}
	}
}

func TestCreatedAtNeverRegresses(t *testing.T) {
	is := is.New(t)
	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC), // clock stepped back
	}
	i := 0
	l, _ := newTestLog(t, Options{Now: func() time.Time { t := times[i]; i++; return t }})

	a, err := l.Append(context.Background(), factory.MakeJoin("a"))
	is.NoErr(err)
	b, err := l.Append(context.Background(), factory.MakeJoin("b"))
	is.NoErr(err)
	is.True(!b.CreatedAt.Before(a.CreatedAt))
}

func TestCorruptRecordsSkippedAndLogged(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	logger := logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{DisableTimestamp: true}), logpkg.WithOutput(logpkg.NewWriterOutput(&buf)))
	l, store := newTestLog(t, Options{Logger: logger})
	appendMessages(t, l, 3)

	is.True(store.Corrupt(2, []byte("garbage")))

	all, err := l.ReadAll(context.Background())
	is.NoErr(err)
	is.Equal(eventIDs(all), []uint64{1, 3})
	is.Equal(l.CorruptSkipped(), uint64(1))
	is.True(strings.Contains(buf.String(), "skipping corrupt record"))
	is.True(strings.Contains(buf.String(), "id=2"))

	// a record framed for another id is rejected too
	is.True(store.Corrupt(3, EncodeRecord(recordHeader(9, "json"), []byte(`{"id":9,"type":"message"}`))))
	hi, err := l.HighestID(context.Background())
	is.NoErr(err)
	is.Equal(hi, uint64(3))
	all, err = l.ReadAll(context.Background())
	is.NoErr(err)
	is.Equal(eventIDs(all), []uint64{1})
}

func TestMixedCodecsReadable(t *testing.T) {
	is := is.New(t)
	store := eventstore.NewMemory()
	ctx := context.Background()

	jl, err := New(store, Options{Codec: codec.JSON})
	is.NoErr(err)
	_, err = jl.Append(ctx, factory.MakeJoin("ann"))
	is.NoErr(err)

	ml, err := New(store, Options{Codec: codec.MsgPack})
	is.NoErr(err)
	msg, _ := factory.MakeMessage("ann", "hi")
	_, err = ml.Append(ctx, msg)
	is.NoErr(err)

	all, err := ml.ReadAll(ctx)
	is.NoErr(err)
	is.Equal(len(all), 2)
	is.Equal(all[0].Kind, event.KindJoin)
	is.Equal(all[1].AuthorName(), "ann")
}

func TestClearKeepsIDs(t *testing.T) {
	is := is.New(t)
	l, _ := newTestLog(t, Options{})
	appendMessages(t, l, 2)
	ctx := context.Background()

	is.NoErr(l.Clear(ctx))
	all, err := l.ReadAll(ctx)
	is.NoErr(err)
	is.Equal(len(all), 0)

	ev, err := l.Append(ctx, factory.MakeJoin("ann"))
	is.NoErr(err)
	is.Equal(ev.ID, uint64(3))
}

func TestNotifyWakesOnAppend(t *testing.T) {
	l, _ := newTestLog(t, Options{})
	ch := l.Notify()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = l.Append(context.Background(), factory.MakeJoin("ann"))
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("notify channel not closed after append")
	}
	select {
	case <-l.Notify():
		t.Fatalf("fresh notify channel closed without an append")
	default:
	}
}

type failingStore struct{ eventstore.Store }

func (failingStore) Append(context.Context, int, eventstore.EncodeFunc) (uint64, error) {
	return 0, errors.New("disk on fire")
}

func (failingStore) Range(context.Context) ([]eventstore.Record, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) View(context.Context) (eventstore.View, error) {
	return eventstore.View{}, errors.New("disk on fire")
}

func TestStoreFailuresAreTransient(t *testing.T) {
	l, err := New(failingStore{}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := l.Append(context.Background(), factory.MakeJoin("ann")); errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("append error kind = %v", errs.KindOf(err))
	}
	if _, err := l.ReadAll(context.Background()); errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("read error kind = %v", errs.KindOf(err))
	}
	if _, err := l.View(context.Background()); errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("view error kind = %v", errs.KindOf(err))
	}
}

func TestViewReadsEventsWithMembers(t *testing.T) {
	is := is.New(t)
	l, store := newTestLog(t, Options{})
	ctx := context.Background()

	_, err := l.Append(ctx, factory.MakeJoin("bob"))
	is.NoErr(err)
	_, err = store.AddMember(ctx, "bob")
	is.NoErr(err)

	snap, err := l.View(ctx)
	is.NoErr(err)
	is.Equal(eventIDs(snap.Events), []uint64{1})
	is.Equal(snap.Members, []string{"bob"})
	is.Equal(snap.HighestID, uint64(1))

	plain, err := l.Snapshot(ctx)
	is.NoErr(err)
	is.True(plain.Members == nil)
}
