package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/rzbill/relay/pkg/id"
)

// Memory keeps the log and presence set in process memory.
type Memory struct {
	mu      sync.RWMutex
	seq     id.Sequence
	entries []Record
	members map[string]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{members: make(map[string]struct{})}
}

func (m *Memory) Append(ctx context.Context, limit int, encode EncodeFunc) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.seq.Next()
	data, err := encode(id)
	if err != nil {
		return 0, err
	}
	m.entries = append(m.entries, Record{ID: id, Data: append([]byte(nil), data...)})
	if n := trimCount(len(m.entries), limit); n > 0 {
		m.entries = append(m.entries[:0:0], m.entries[n:]...)
	}
	return id, nil
}

func (m *Memory) Range(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) AddMember(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[name]; ok {
		return false, nil
	}
	m.members[name] = struct{}{}
	return true, nil
}

func (m *Memory) RemoveMember(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[name]; !ok {
		return false, nil
	}
	delete(m.members, name)
	return true, nil
}

func (m *Memory) Members(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.members))
	for name := range m.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) View(ctx context.Context) (View, error) {
	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := View{Records: make([]Record, len(m.entries)), Members: make([]string, 0, len(m.members))}
	copy(v.Records, m.entries)
	for name := range m.members {
		v.Members = append(v.Members, name)
	}
	sort.Strings(v.Members)
	return v, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.members = make(map[string]struct{})
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Corrupt overwrites the stored bytes of entry id. Used by tests that
// exercise the log's corrupt-record handling.
func (m *Memory) Corrupt(id uint64, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].Data = data
			return true
		}
	}
	return false
}
