package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// DefaultHealthInterval is how often the store is checked for health status.
const DefaultHealthInterval = 5 * time.Second

// Options configures the gRPC server.
type Options struct {
	// HealthInterval between store checks. Defaults to DefaultHealthInterval.
	HealthInterval time.Duration
	Logger         logpkg.Logger
	ServerOptions  []grpc.ServerOption
}

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	health *healthChecker
	logger logpkg.Logger

	mu     sync.Mutex
	lis    net.Listener
	closed bool
}

// New constructs a gRPC server and registers the standard health service.
func New(rt *runtime.Runtime, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	logger := opts.Logger.WithComponent("grpc")
	s := &Server{
		rt:     rt,
		grpc:   grpc.NewServer(opts.ServerOptions...),
		health: newHealthChecker(rt, opts.HealthInterval, logger),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health.srv)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return nil
	}
	s.lis = l
	s.mu.Unlock()
	checkCtx, stopCheck := context.WithCancel(ctx)
	defer stopCheck()
	go s.health.run(checkCtx)

	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.health.srv.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		return err
	}
}

// Close stops the server and closes the listener. It may be called from
// any goroutine, before or while Serve runs.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	l := s.lis
	s.mu.Unlock()
	if s.grpc != nil {
		s.health.srv.Shutdown()
		s.grpc.GracefulStop()
	}
	if l != nil {
		_ = l.Close()
	}
}
