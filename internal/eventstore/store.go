package eventstore

import (
	"context"
)

// Record is one stored log entry. Data is opaque to the store.
type Record struct {
	ID   uint64
	Data []byte
}

// View is the log and the presence set as of one instant.
type View struct {
	Records []Record
	Members []string
}

// EncodeFunc serializes the entry being appended once its id is known. It
// may be called more than once when a backend retries a contended append,
// each time with a fresh id.
type EncodeFunc func(id uint64) ([]byte, error)

// Store is the contract the event log and presence managers are built on.
type Store interface {
	// Append allocates the next id, stores encode(id) and drops the oldest
	// entries so at most limit remain, atomically. limit <= 0 disables
	// trimming.
	Append(ctx context.Context, limit int, encode EncodeFunc) (uint64, error)
	// Range returns every retained entry in ascending id order from one
	// consistent read.
	Range(ctx context.Context) ([]Record, error)
	// AddMember adds name to the presence set, reporting false when it was
	// already present.
	AddMember(ctx context.Context, name string) (bool, error)
	// RemoveMember removes name, reporting whether it was present.
	RemoveMember(ctx context.Context, name string) (bool, error)
	// Members lists the presence set in ascending order.
	Members(ctx context.Context) ([]string, error)
	// View reads the log and the presence set together, so no append or
	// membership change lands between the two.
	View(ctx context.Context) (View, error)
	// Clear drops every entry and member. The id sequence is kept so ids
	// are never reused.
	Clear(ctx context.Context) error
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// Compactor is implemented by backends that benefit from periodic
// maintenance after trims.
type Compactor interface {
	Compact(ctx context.Context) error
}

func trimCount(n, limit int) int {
	if limit <= 0 || n <= limit {
		return 0
	}
	return n - limit
}
