package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
)

// ServiceName is the health service name reported alongside the server-wide
// "" entry.
const ServiceName = "relay.Chat"

// healthChecker mirrors the runtime health check into the standard gRPC
// health service.
type healthChecker struct {
	rt       *runtime.Runtime
	srv      *health.Server
	interval time.Duration
	logger   logpkg.Logger
	last     healthpb.HealthCheckResponse_ServingStatus
}

func newHealthChecker(rt *runtime.Runtime, interval time.Duration, logger logpkg.Logger) *healthChecker {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	p := &healthChecker{rt: rt, srv: health.NewServer(), interval: interval, logger: logger}
	p.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return p
}

func (p *healthChecker) set(st healthpb.HealthCheckResponse_ServingStatus) {
	p.srv.SetServingStatus("", st)
	p.srv.SetServingStatus(ServiceName, st)
	p.last = st
}

// check queries the store once and publishes the result.
func (p *healthChecker) check(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := p.rt.CheckHealth(cctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		st = healthpb.HealthCheckResponse_NOT_SERVING
		p.logger.Warn("health check failed", logpkg.Err(err))
	}
	if st != p.last {
		p.logger.Info("health status changed", logpkg.Str("status", st.String()))
	}
	p.set(st)
}

func (p *healthChecker) run(ctx context.Context) {
	p.check(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.check(ctx)
		}
	}
}
