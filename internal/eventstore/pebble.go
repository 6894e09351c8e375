package eventstore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	"github.com/rzbill/relay/pkg/id"
)

// Pebble stores a room in an embedded Pebble database. Appends and
// membership changes are serialized by a mutex and committed as single
// batches. The database handle is owned by the caller.
type Pebble struct {
	db   *pebblestore.DB
	room string

	mu    sync.Mutex
	seq   id.Sequence
	count int
}

// OpenPebble binds a room in db, restoring the id sequence and retained
// entry count from disk.
func OpenPebble(db *pebblestore.DB, room string) (*Pebble, error) {
	if db == nil {
		return nil, errors.New("eventstore: nil pebble db")
	}
	if room == "" {
		return nil, errors.New("eventstore: room is required")
	}
	p := &Pebble{db: db, room: room}

	meta, err := db.Get(keyLogMeta(room))
	switch {
	case err == nil && len(meta) >= 8:
		p.seq.Restore(binary.BigEndian.Uint64(meta[:8]))
	case err != nil && !pebblestore.IsNotFound(err):
		return nil, err
	}

	prefix := keyEntryPrefix(room)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		p.count++
		// entries written before the meta key existed
		p.seq.Restore(entryID(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pebble) Append(ctx context.Context, limit int, encode EncodeFunc) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.seq.Next()
	data, err := encode(id)
	if err != nil {
		return 0, err
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEntry(p.room, id), data, nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], id)
	if err := b.Set(keyLogMeta(p.room), meta[:], nil); err != nil {
		return 0, err
	}

	evict := trimCount(p.count+1, limit)
	if evict > 0 {
		if err := p.deleteOldest(b, evict); err != nil {
			return 0, err
		}
	}

	if err := p.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	p.count = p.count + 1 - evict
	return id, nil
}

// deleteOldest adds deletes for the n oldest committed entries to b.
func (p *Pebble) deleteOldest(b *pebble.Batch, n int) error {
	prefix := keyEntryPrefix(p.room)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	deleted := 0
	for ok := iter.First(); ok && deleted < n; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
		deleted++
	}
	return iter.Error()
}

func (p *Pebble) Range(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.scanEntries(p.db.NewIter)
}

type newIterFunc func(*pebble.IterOptions) (*pebble.Iterator, error)

func (p *Pebble) scanEntries(newIter newIterFunc) ([]Record, error) {
	prefix := keyEntryPrefix(p.room)
	iter, err := newIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Record
	for ok := iter.First(); ok; ok = iter.Next() {
		out = append(out, Record{ID: entryID(iter.Key()), Data: append([]byte(nil), iter.Value()...)})
	}
	return out, iter.Error()
}

func (p *Pebble) scanMembers(newIter newIterFunc) ([]string, error) {
	prefix := keyUsersPrefix(p.room)
	iter, err := newIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := []string{}
	for ok := iter.First(); ok; ok = iter.Next() {
		out = append(out, string(iter.Key()[len(prefix):]))
	}
	return out, iter.Error()
}

func (p *Pebble) AddMember(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyUser(p.room, name)
	ok, err := p.db.Has(key)
	if err != nil || ok {
		return false, err
	}
	if err := p.db.Set(key, []byte{1}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pebble) RemoveMember(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyUser(p.room, name)
	ok, err := p.db.Has(key)
	if err != nil || !ok {
		return false, err
	}
	if err := p.db.Delete(key); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pebble) Members(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.scanMembers(p.db.NewIter)
}

// View reads entries and members from one Pebble snapshot.
func (p *Pebble) View(ctx context.Context) (View, error) {
	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	snap := p.db.NewSnapshot()
	defer snap.Close()

	recs, err := p.scanEntries(snap.NewIter)
	if err != nil {
		return View{}, err
	}
	members, err := p.scanMembers(snap.NewIter)
	if err != nil {
		return View{}, err
	}
	return View{Records: recs, Members: members}, nil
}

func (p *Pebble) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.db.NewBatch()
	defer b.Close()
	entries := keyEntryPrefix(p.room)
	if err := b.DeleteRange(entries, pebblestore.PrefixUpperBound(entries), nil); err != nil {
		return err
	}
	users := keyUsersPrefix(p.room)
	if err := b.DeleteRange(users, pebblestore.PrefixUpperBound(users), nil); err != nil {
		return err
	}
	if err := p.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	p.count = 0
	return nil
}

func (p *Pebble) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Ping()
}

// Compact reclaims space left by trimmed entries of this room.
func (p *Pebble) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := keyRoom(p.room)
	return p.db.CompactRange(start, pebblestore.PrefixUpperBound(start))
}
