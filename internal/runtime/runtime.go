package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rzbill/relay/internal/codec"
	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/event"
	"github.com/rzbill/relay/internal/eventlog"
	"github.com/rzbill/relay/internal/eventstore"
	"github.com/rzbill/relay/internal/presence"
	"github.com/rzbill/relay/internal/storage/natskv"
	pebblestore "github.com/rzbill/relay/internal/storage/pebble"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// NATSConn reuses an existing connection for the nats backend instead of
	// dialing Config.Store.NATSURL.
	NATSConn *nats.Conn
}

// Runtime wires storage, config, and the room components for a single
// relay process.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger

	db     *pebblestore.DB
	bucket *natskv.Bucket
	store  eventstore.Store

	log      *eventlog.Log
	presence *presence.Manager
	factory  event.Factory
}

// Open initializes the configured store backend and the room components.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	cd, err := codec.Get(cfg.Store.Codec)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{config: cfg, logger: logger}
	switch cfg.Store.Backend {
	case cfgpkg.BackendMemory:
		rt.store = eventstore.NewMemory()
	case cfgpkg.BackendPebble:
		if opts.DataDir == "" {
			return nil, errors.New("runtime: DataDir is required for the pebble backend")
		}
		db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval})
		if err != nil {
			return nil, err
		}
		st, err := eventstore.OpenPebble(db, cfg.Room)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db, rt.store = db, st
	case cfgpkg.BackendNATS:
		bucket, err := natskv.Connect(ctx, natskv.Options{
			URL:     cfg.Store.NATSURL,
			Bucket:  cfg.Store.NATSBucket,
			Name:    "relay-" + cfg.Room,
			Timeout: cfg.StoreTimeout(),
			Conn:    opts.NATSConn,
		})
		if err != nil {
			return nil, err
		}
		st, err := eventstore.NewNATS(bucket, cfg.Room)
		if err != nil {
			_ = bucket.Close()
			return nil, err
		}
		rt.bucket, rt.store = bucket, st
	default:
		return nil, fmt.Errorf("runtime: unknown store backend %q", cfg.Store.Backend)
	}

	l, err := eventlog.New(rt.store, eventlog.Options{
		MaxHistory: cfg.MaxHistory,
		Codec:      cd,
		Logger:     logger.WithComponent("eventlog"),
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.log = l
	rt.presence = presence.New(rt.store, logger.WithComponent("presence"))
	rt.factory = event.Factory{
		MaxMessageLength:  cfg.MaxMessageLength,
		UsernameMinLength: cfg.UsernameMinLength,
		UsernameMaxLength: cfg.UsernameMaxLength,
	}
	logger.Info("runtime opened",
		logpkg.Str("room", cfg.Room),
		logpkg.Str("store", cfg.Store.Backend),
		logpkg.Str("codec", cd.Name()),
		logpkg.Int("max_history", cfg.MaxHistory))
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	var errsOut []error
	if r.db != nil {
		errsOut = append(errsOut, r.db.Close())
		r.db = nil
	}
	if r.bucket != nil {
		errsOut = append(errsOut, r.bucket.Close())
		r.bucket = nil
	}
	return errors.Join(errsOut...)
}

// CheckHealth verifies the store answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	return r.store.Ping(ctx)
}

// Compact reclaims space in backends that support it. It is a no-op for
// the others.
func (r *Runtime) Compact(ctx context.Context) error {
	c, ok := r.store.(eventstore.Compactor)
	if !ok {
		return nil
	}
	return c.Compact(ctx)
}

// Log returns the room's event log.
func (r *Runtime) Log() *eventlog.Log { return r.log }

// Presence returns the room's presence manager.
func (r *Runtime) Presence() *presence.Manager { return r.presence }

// Factory returns the event factory configured with the room's limits.
func (r *Runtime) Factory() event.Factory { return r.factory }

// Store exposes the underlying event store (internal use only).
func (r *Runtime) Store() eventstore.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
