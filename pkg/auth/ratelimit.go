package auth

import (
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitPolicy bounds request throughput per actor.
type RateLimitPolicy struct {
	RPM   int // sustained requests per minute
	Burst int // burst allowance
}

// limiterPool tracks one token bucket per actor.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	policy   RateLimitPolicy
}

func (p *limiterPool) get(actorID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[actorID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(p.policy.RPM)/60.0), p.policy.Burst)
		p.limiters[actorID] = l
	}
	return l
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// The actor is the authenticated Principal when present, the remote IP
// otherwise. Exceeding the limit returns 429 with a Retry-After header.
func RateLimitMiddleware(policy RateLimitPolicy) func(http.Handler) http.Handler {
	pool := &limiterPool{limiters: make(map[string]*rate.Limiter), policy: policy}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.RPM <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			actorID := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				actorID = host
			}
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = principal.GetTenantID() + "/" + principal.GetID()
			}

			if !pool.get(actorID).Allow() {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
