package guard

import (
	"golang.org/x/time/rate"
)

// AcceptLimiter applies a token-bucket per remote IP at accept time. The
// reactor is single-threaded, so no locking is needed around the pool.
type AcceptLimiter struct {
	rps   float64
	burst int
	pool  map[string]*rate.Limiter
}

// New returns a limiter allowing rps accepts per second with the given
// burst per remote IP. A nil limiter (rps <= 0) allows everything.
func New(rps float64, burst int) *AcceptLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &AcceptLimiter{rps: rps, burst: burst, pool: map[string]*rate.Limiter{}}
}

// Allow reports whether a new connection from ip may be accepted now.
func (g *AcceptLimiter) Allow(ip string) bool {
	if g == nil {
		return true
	}
	l, ok := g.pool[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.rps), g.burst)
		g.pool[ip] = l
	}
	return l.Allow()
}
