package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/dataset-api/common/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("incoming id not kept: %q", seen)
	}
}

func TestCompose_Order(t *testing.T) {
	var order []string
	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Compose(mk("a"), mk("b"), mk("c"))(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := RequestLogger(logger.FromZap(zap.New(core)))(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/query", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("level = %v; want warn for 418", entries[0].Level)
	}
	if entries[0].ContextMap()["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v", entries[0].ContextMap()["status"])
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := routePattern(r); got != "/items/{id}" {
			t.Errorf("pattern inside handler = %q", got)
		}
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("routePattern without chi = %q", got)
	}
}

func TestRateLimiter_PerClientAndEviction(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, IdleTTL: time.Minute})
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst of 2 must be allowed")
	}
	if rl.Allow("a") {
		t.Error("third request within the same instant must be rejected")
	}
	if !rl.Allow("b") {
		t.Error("other client must not be affected")
	}

	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	if _, ok := rl.limiters["a"]; ok {
		t.Error("idle client must be evicted")
	}
}

func TestRateLimiter_SweepsOncePerTTL(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	start := time.Unix(1000, 0)
	now := start
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	for i := 0; i < 50; i++ {
		now = now.Add(time.Second)
		rl.Allow("b")
		if !rl.lastSweep.Equal(start) {
			t.Fatalf("swept at %v, before a full ttl elapsed", now)
		}
	}
	if _, ok := rl.limiters["a"]; !ok {
		t.Fatal("client a must survive until the next sweep")
	}

	now = start.Add(time.Minute + 10*time.Second)
	rl.Allow("b")
	if !rl.lastSweep.Equal(now) {
		t.Errorf("lastSweep = %v; want %v", rl.lastSweep, now)
	}
	if _, ok := rl.limiters["a"]; ok {
		t.Error("idle client a must be evicted by the sweep")
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("active client b must be kept")
	}
}

func TestRateLimit_Middleware429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	h := RateLimit(rl)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("first request code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request code = %d; want 429", rec.Code)
	}
	if (RateLimitConfig{}).Enabled() {
		t.Error("zero config must be disabled")
	}
}
