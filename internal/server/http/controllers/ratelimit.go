package controllers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an unused per-client limiter is kept.
	limiterIdleTTL = 10 * time.Minute
	// limiterSweepAt is the table size that triggers an idle sweep.
	limiterSweepAt = 4096
)

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ProducerLimiter is a token bucket per client address guarding the
// producer endpoints. A zero rate disables limiting.
type ProducerLimiter struct {
	mu      sync.Mutex
	rps     float64
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewProducerLimiter returns a limiter allowing rps sustained requests per
// client with bursts up to burst.
func NewProducerLimiter(rps float64, burst int) *ProducerLimiter {
	p := &ProducerLimiter{clients: map[string]*clientLimiter{}, now: time.Now}
	p.SetLimit(rps, burst)
	return p
}

// SetLimit changes the limits for existing and future clients.
func (p *ProducerLimiter) SetLimit(rps float64, burst int) {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rps, p.burst = rps, burst
	for _, c := range p.clients {
		c.lim.SetLimit(rate.Limit(rps))
		c.lim.SetBurst(burst)
	}
}

// Allow reports whether a request from client may proceed now.
func (p *ProducerLimiter) Allow(client string) bool {
	p.mu.Lock()
	if p.rps <= 0 {
		p.mu.Unlock()
		return true
	}
	now := p.now()
	c, ok := p.clients[client]
	if !ok {
		if len(p.clients) >= limiterSweepAt {
			p.sweepLocked(now)
		}
		c = &clientLimiter{lim: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.clients[client] = c
	}
	c.lastSeen = now
	p.mu.Unlock()
	return c.lim.AllowN(now, 1)
}

func (p *ProducerLimiter) sweepLocked(now time.Time) {
	for k, c := range p.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(p.clients, k)
		}
	}
}

// Wrap answers 429 when the caller has exhausted its tokens.
func (p *ProducerLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if p == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && !p.Allow(clientAddr(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
