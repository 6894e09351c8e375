package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rzbill/relay/internal/runtime"
	"github.com/rzbill/relay/internal/server/http/controllers"
	chatsvc "github.com/rzbill/relay/internal/services/chat"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// shutdownGrace bounds how long in-flight requests get after shutdown starts.
const shutdownGrace = 5 * time.Second

// Server is the relay's HTTP gateway.
type Server struct {
	rt      *runtime.Runtime
	chat    *chatsvc.Service
	limiter *controllers.ProducerLimiter
	logger  logpkg.Logger

	srv *http.Server

	mu     sync.Mutex
	lis    net.Listener
	closed bool

	// baseCtx parents every request context; cancelling it ends open streams.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New builds the gateway over rt, creating the chat service from it.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return NewWithService(rt, chatsvc.New(rt, logger.WithComponent("chat")), logger)
}

// NewWithService builds the gateway around an existing chat service.
func NewWithService(rt *runtime.Runtime, chat *chatsvc.Service, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	httpLogger := logger.WithComponent("http")
	cfg := rt.Config()
	limiter := controllers.NewProducerLimiter(cfg.Producer.RatePerSec, cfg.Producer.Burst)

	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt, chat, limiter, httpLogger).RegisterAllRoutes(mux)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Server{
		rt:         rt,
		chat:       chat,
		limiter:    limiter,
		logger:     httpLogger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	s.srv = &http.Server{
		Handler:           requestID(accessLog(httpLogger, cors(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          logpkg.ToStdLogger(httpLogger, logpkg.WarnLevel),
	}
	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Chat returns the chat service the gateway serves.
func (s *Server) Chat() *chatsvc.Service { return s.chat }

// SetProducerLimit changes the per-client producer rate limit at runtime.
func (s *Server) SetProducerLimit(rps float64, burst int) {
	s.limiter.SetLimit(rps, burst)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down:
// open streams are cancelled and in-flight requests get a short grace.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	if !s.setListener(l) {
		_ = l.Close()
		return nil
	}
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		s.baseCancel()
		cctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		s.baseCancel()
		if errors.Is(err, http.ErrServerClosed) || s.isClosed() {
			return nil
		}
		return err
	}
}

// setListener records l unless Close already ran.
func (s *Server) setListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.lis = l
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the listener and ends open streams. It may be called from any
// goroutine, before or while Serve runs.
func (s *Server) Close() {
	s.baseCancel()
	s.mu.Lock()
	s.closed = true
	l := s.lis
	s.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
}
