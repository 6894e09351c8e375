package natskv

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natsserver.RunServer(&opts)
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})
	return srv
}

func newTestBucket(t *testing.T) *Bucket {
	t.Helper()
	srv := runServer(t)
	b, err := Connect(context.Background(), Options{URL: srv.ClientURL(), Bucket: "test", Memory: true, MaxAttempts: 64})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMutateCreatesThenUpdates(t *testing.T) {
	is := is.New(t)
	b := newTestBucket(t)
	ctx := context.Background()

	_, _, exists, err := b.Get(ctx, "k")
	is.NoErr(err)
	is.True(!exists)

	inc := func(cur []byte, exists bool) ([]byte, error) {
		n := 0
		if exists {
			n, _ = strconv.Atoi(string(cur))
		}
		return []byte(strconv.Itoa(n + 1)), nil
	}
	_, err = b.Mutate(ctx, "k", inc)
	is.NoErr(err)
	_, err = b.Mutate(ctx, "k", inc)
	is.NoErr(err)

	v, _, exists, err := b.Get(ctx, "k")
	is.NoErr(err)
	is.True(exists)
	is.Equal(string(v), "2")
}

func TestMutateConcurrentNoLostUpdates(t *testing.T) {
	b := newTestBucket(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Mutate(ctx, "counter", func(cur []byte, exists bool) ([]byte, error) {
				n := 0
				if exists {
					n, _ = strconv.Atoi(string(cur))
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	v, _, _, err := b.Get(ctx, "counter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != strconv.Itoa(writers) {
		t.Fatalf("counter = %s, want %d", v, writers)
	}
}

func TestMutateNoChange(t *testing.T) {
	is := is.New(t)
	b := newTestBucket(t)
	rev, err := b.Mutate(context.Background(), "k", func([]byte, bool) ([]byte, error) { return nil, ErrNoChange })
	is.NoErr(err)
	is.Equal(rev, uint64(0))
	is.NoErr(b.Ping(context.Background()))
}
