// Package natskv wraps a NATS JetStream key-value bucket with the
// compare-and-swap helper relay's shared store is built on.
//
//	b, err := natskv.Connect(ctx, natskv.Options{URL: "nats://127.0.0.1:4222", Bucket: "relay"})
//	if err != nil { /* handle */ }
//	defer b.Close()
//
//	_, err = b.Mutate(ctx, "lobby.users", func(cur []byte, exists bool) ([]byte, error) {
//	    return next, nil
//	})
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrContended is returned when Mutate could not win the compare-and-swap
// race within MaxAttempts.
var ErrContended = errors.New("natskv: too much contention")

// ErrNoChange may be returned by a MutateFunc to skip the write.
var ErrNoChange = errors.New("natskv: no change")

// Options configures the connection and bucket.
type Options struct {
	// URL of the NATS server. Defaults to nats.DefaultURL.
	URL string
	// Bucket name. Created if missing.
	Bucket string
	// Name identifies the client connection in server monitoring.
	Name string
	// Memory selects in-memory bucket storage instead of file storage.
	Memory bool
	// Replicas for the bucket stream. Defaults to 1.
	Replicas int
	// Timeout bounds connect and bucket setup.
	Timeout time.Duration
	// MaxAttempts bounds Mutate retries. Defaults to 16.
	MaxAttempts int
	// Conn reuses an existing connection instead of dialing URL. Close
	// leaves a reused connection open.
	Conn *nats.Conn
}

// Bucket is an open key-value bucket.
type Bucket struct {
	nc          *nats.Conn
	ownsConn    bool
	js          jetstream.JetStream
	kv          jetstream.KeyValue
	maxAttempts int
}

// Connect dials NATS (unless opts.Conn is set) and binds to the bucket,
// creating it when needed.
func Connect(ctx context.Context, opts Options) (*Bucket, error) {
	if opts.Bucket == "" {
		return nil, errors.New("natskv: Options.Bucket is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 16
	}
	if opts.Replicas <= 0 {
		opts.Replicas = 1
	}

	nc := opts.Conn
	owns := false
	if nc == nil {
		url := opts.URL
		if url == "" {
			url = nats.DefaultURL
		}
		name := opts.Name
		if name == "" {
			name = "relay"
		}
		var err error
		nc, err = nats.Connect(url,
			nats.Name(name),
			nats.Timeout(opts.Timeout),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("natskv: connect %s: %w", url, err)
		}
		owns = true
	}

	js, err := jetstream.New(nc)
	if err != nil {
		if owns {
			nc.Close()
		}
		return nil, fmt.Errorf("natskv: jetstream: %w", err)
	}

	storage := jetstream.FileStorage
	if opts.Memory {
		storage = jetstream.MemoryStorage
	}
	setupCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	kv, err := js.CreateOrUpdateKeyValue(setupCtx, jetstream.KeyValueConfig{
		Bucket:   opts.Bucket,
		History:  1,
		Storage:  storage,
		Replicas: opts.Replicas,
	})
	if err != nil {
		if owns {
			nc.Close()
		}
		return nil, fmt.Errorf("natskv: bucket %s: %w", opts.Bucket, err)
	}

	return &Bucket{nc: nc, ownsConn: owns, js: js, kv: kv, maxAttempts: opts.MaxAttempts}, nil
}

// Close drains the connection when the bucket owns it.
func (b *Bucket) Close() error {
	if b == nil || b.nc == nil || !b.ownsConn {
		return nil
	}
	return b.nc.Drain()
}

// Ping round-trips to the server.
func (b *Bucket) Ping(ctx context.Context) error {
	if b.nc.Status() != nats.CONNECTED {
		return fmt.Errorf("natskv: connection %s", b.nc.Status())
	}
	return b.nc.FlushWithContext(ctx)
}

// Get returns the value and revision of key. A missing key reports
// exists=false with no error.
func (b *Bucket) Get(ctx context.Context, key string) (value []byte, revision uint64, exists bool, err error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	return entry.Value(), entry.Revision(), true, nil
}

// ReadStable reads key, runs read, then checks that key's revision did not
// move meanwhile, retrying otherwise. The returned value of key is current
// for the whole time read ran, so the pair forms one consistent view.
func (b *Bucket) ReadStable(ctx context.Context, key string, read func(ctx context.Context) error) ([]byte, bool, error) {
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		cur, rev, exists, err := b.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if err := read(ctx); err != nil {
			return nil, false, err
		}
		_, after, stillExists, err := b.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if after == rev && stillExists == exists {
			return cur, exists, nil
		}
	}
	return nil, false, ErrContended
}

// MutateFunc computes the next value from the current one. It may run more
// than once and must not have side effects.
type MutateFunc func(cur []byte, exists bool) ([]byte, error)

// Mutate applies fn with optimistic concurrency: read, compute, write only if
// the revision is unchanged, retry on conflict. It returns the new revision,
// or 0 with a nil error when fn returned ErrNoChange.
func (b *Bucket) Mutate(ctx context.Context, key string, fn MutateFunc) (uint64, error) {
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur, rev, exists, err := b.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		next, err := fn(cur, exists)
		if errors.Is(err, ErrNoChange) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		var newRev uint64
		if exists {
			newRev, err = b.kv.Update(ctx, key, next, rev)
		} else {
			newRev, err = b.kv.Create(ctx, key, next)
		}
		if err == nil {
			return newRev, nil
		}
		if !IsConflict(err) {
			return 0, err
		}
	}
	return 0, ErrContended
}

// IsConflict reports whether err is a lost compare-and-swap.
func IsConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
