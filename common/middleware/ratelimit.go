// common/middleware/ratelimit.go
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig задаёт лимит на одного клиента (по IP).
// RequestsPerSecond <= 0 отключает ограничение.
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// Enabled сообщает, включён ли лимитер.
func (c RateLimitConfig) Enabled() bool { return c.RequestsPerSecond > 0 }

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter хранит token-bucket на каждый IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time

	lastSweep time.Time
}

// NewRateLimiter создаёт лимитер; неактивные клиенты вычищаются спустя IdleTTL.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		ttl:      cfg.IdleTTL,
		now:      time.Now,
	}
}

// Allow расходует один токен клиента key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.lim.AllowN(now, 1)
}

// sweep удаляет неактивных клиентов не чаще раза за ttl. Вызывается под mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if rl.lastSweep.IsZero() {
		rl.lastSweep = now
		return
	}
	if now.Sub(rl.lastSweep) < rl.ttl {
		return
	}
	rl.lastSweep = now
	for k, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.ttl {
			delete(rl.limiters, k)
		}
	}
}

// RateLimit отвечает 429, когда клиент превысил лимит.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"detail":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
