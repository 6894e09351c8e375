package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rzbill/relay/internal/storage/natskv"
)

// NATS stores a room in a JetStream key-value bucket using two keys,
// "{room}.log" and "{room}.users". Every change is a compare-and-swap on
// one key, so any number of relay processes can share the bucket. The id
// sequence lives inside the log value and survives restarts.
type NATS struct {
	bucket   *natskv.Bucket
	logKey   string
	usersKey string
}

type natsLog struct {
	Last    uint64      `msgpack:"last"`
	Entries []natsEntry `msgpack:"entries"`
}

type natsEntry struct {
	ID   uint64 `msgpack:"id"`
	Data []byte `msgpack:"data"`
}

// NewNATS binds a room in bucket. The bucket is owned by the caller.
func NewNATS(bucket *natskv.Bucket, room string) (*NATS, error) {
	if bucket == nil {
		return nil, errors.New("eventstore: nil nats bucket")
	}
	if room == "" {
		return nil, errors.New("eventstore: room is required")
	}
	return &NATS{bucket: bucket, logKey: room + ".log", usersKey: room + ".users"}, nil
}

func decodeLog(cur []byte, exists bool) (natsLog, error) {
	var st natsLog
	if !exists || len(cur) == 0 {
		return st, nil
	}
	if err := msgpack.Unmarshal(cur, &st); err != nil {
		return st, fmt.Errorf("eventstore: decode log: %w", err)
	}
	return st, nil
}

func decodeUsers(cur []byte, exists bool) ([]string, error) {
	if !exists || len(cur) == 0 {
		return []string{}, nil
	}
	var users []string
	if err := msgpack.Unmarshal(cur, &users); err != nil {
		return nil, fmt.Errorf("eventstore: decode users: %w", err)
	}
	return users, nil
}

func wrapContended(err error) error {
	if errors.Is(err, natskv.ErrContended) {
		return fmt.Errorf("eventstore: append: %w", err)
	}
	return err
}

func (n *NATS) Append(ctx context.Context, limit int, encode EncodeFunc) (uint64, error) {
	var id uint64
	_, err := n.bucket.Mutate(ctx, n.logKey, func(cur []byte, exists bool) ([]byte, error) {
		st, err := decodeLog(cur, exists)
		if err != nil {
			return nil, err
		}
		id = st.Last + 1
		data, err := encode(id)
		if err != nil {
			return nil, err
		}
		st.Entries = append(st.Entries, natsEntry{ID: id, Data: data})
		if k := trimCount(len(st.Entries), limit); k > 0 {
			st.Entries = st.Entries[k:]
		}
		st.Last = id
		return msgpack.Marshal(&st)
	})
	if err != nil {
		return 0, wrapContended(err)
	}
	return id, nil
}

func (n *NATS) Range(ctx context.Context) ([]Record, error) {
	cur, _, exists, err := n.bucket.Get(ctx, n.logKey)
	if err != nil {
		return nil, err
	}
	st, err := decodeLog(cur, exists)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(st.Entries))
	for i, e := range st.Entries {
		out[i] = Record{ID: e.ID, Data: e.Data}
	}
	return out, nil
}

func (n *NATS) AddMember(ctx context.Context, name string) (bool, error) {
	added := false
	_, err := n.bucket.Mutate(ctx, n.usersKey, func(cur []byte, exists bool) ([]byte, error) {
		added = false
		users, err := decodeUsers(cur, exists)
		if err != nil {
			return nil, err
		}
		i := sort.SearchStrings(users, name)
		if i < len(users) && users[i] == name {
			return nil, natskv.ErrNoChange
		}
		users = append(users, "")
		copy(users[i+1:], users[i:])
		users[i] = name
		added = true
		return msgpack.Marshal(users)
	})
	if err != nil {
		return false, wrapContended(err)
	}
	return added, nil
}

func (n *NATS) RemoveMember(ctx context.Context, name string) (bool, error) {
	removed := false
	_, err := n.bucket.Mutate(ctx, n.usersKey, func(cur []byte, exists bool) ([]byte, error) {
		removed = false
		users, err := decodeUsers(cur, exists)
		if err != nil {
			return nil, err
		}
		i := sort.SearchStrings(users, name)
		if i >= len(users) || users[i] != name {
			return nil, natskv.ErrNoChange
		}
		users = append(users[:i], users[i+1:]...)
		removed = true
		return msgpack.Marshal(users)
	})
	if err != nil {
		return false, wrapContended(err)
	}
	return removed, nil
}

func (n *NATS) Members(ctx context.Context) ([]string, error) {
	cur, _, exists, err := n.bucket.Get(ctx, n.usersKey)
	if err != nil {
		return nil, err
	}
	return decodeUsers(cur, exists)
}

// View reads the users key while the log key is known not to change, so the
// two values describe the same instant.
func (n *NATS) View(ctx context.Context) (View, error) {
	var members []string
	cur, exists, err := n.bucket.ReadStable(ctx, n.logKey, func(ctx context.Context) error {
		var err error
		members, err = n.Members(ctx)
		return err
	})
	if err != nil {
		return View{}, fmt.Errorf("eventstore: view: %w", err)
	}
	st, err := decodeLog(cur, exists)
	if err != nil {
		return View{}, err
	}
	v := View{Records: make([]Record, len(st.Entries)), Members: members}
	for i, e := range st.Entries {
		v.Records[i] = Record{ID: e.ID, Data: e.Data}
	}
	return v, nil
}

func (n *NATS) Clear(ctx context.Context) error {
	_, err := n.bucket.Mutate(ctx, n.logKey, func(cur []byte, exists bool) ([]byte, error) {
		st, err := decodeLog(cur, exists)
		if err != nil {
			return nil, err
		}
		if len(st.Entries) == 0 && exists {
			return nil, natskv.ErrNoChange
		}
		st.Entries = nil
		return msgpack.Marshal(&st)
	})
	if err != nil {
		return wrapContended(err)
	}
	_, err = n.bucket.Mutate(ctx, n.usersKey, func(cur []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, natskv.ErrNoChange
		}
		return msgpack.Marshal([]string{})
	})
	return wrapContended(err)
}

func (n *NATS) Ping(ctx context.Context) error {
	return n.bucket.Ping(ctx)
}
