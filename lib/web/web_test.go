package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/resilience"
)

// mockConn is a pooled connection whose validity can be controlled.
type mockConn struct {
	mu       sync.Mutex
	invalid  bool
	probeErr error
}

func (m *mockConn) IsValid(time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeErr != nil {
		return false, m.probeErr
	}
	return !m.invalid, nil
}

func (m *mockConn) Close() error { return nil }

func newTestPool(t *testing.T, min, max int, mk func() *mockConn) *pool.Pool {
	t.Helper()
	if mk == nil {
		mk = func() *mockConn { return &mockConn{} }
	}
	f := pool.FactoryFunc(func(string, map[string]string) (pool.Resource, error) {
		return mk(), nil
	})
	p, err := pool.New(f, "mock://", nil, pool.Config{MinSize: min, MaxSize: max})
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewRequiresPool(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error without a pool")
	}
}

func TestLiveness(t *testing.T) {
	p := newTestPool(t, 1, 2, nil)
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}

	p.Close()
	w = do(s, http.MethodGet, "/healthz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestStats(t *testing.T) {
	p := newTestPool(t, 2, 4, nil)
	b := resilience.New("test", resilience.DefaultConfig())
	s := newTestServer(t, Config{Pool: p, Breaker: b})

	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer p.Release(h)

	w := do(s, http.MethodGet, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pool.NumOpen != 3 || resp.Pool.NumIdle != 2 || resp.Pool.NumInUse != 1 {
		t.Errorf("pool stats = %+v, want 3 open / 2 idle / 1 in use", resp.Pool)
	}
	if resp.Pool.MaxSize != 4 {
		t.Errorf("max size = %d, want 4", resp.Pool.MaxSize)
	}
	if resp.Breaker == nil || resp.Breaker.State != "closed" {
		t.Errorf("breaker = %+v, want closed", resp.Breaker)
	}
}

func TestStatsWithoutBreaker(t *testing.T) {
	p := newTestPool(t, 1, 1, nil)
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodGet, "/api/stats")
	if strings.Contains(w.Body.String(), `"breaker"`) {
		t.Errorf("breaker should be omitted, got %s", w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	p := newTestPool(t, 3, 5, nil)
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}

	body := w.Body.String()
	for _, want := range []string{
		"dbpool_pool_connections_idle 3",
		"dbpool_pool_connections_max 5",
		"dbpool_pool_acquire_total",
		"dbpool_http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestProbe(t *testing.T) {
	p := newTestPool(t, 2, 4, nil)
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp ProbeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid {
		t.Error("expected a valid connection")
	}
	if resp.NumOpen != 2 || resp.NumIdle != 2 {
		t.Errorf("after probe: %d open / %d idle, want 2 / 2", resp.NumOpen, resp.NumIdle)
	}
	if p.Stats().NumInUse != 0 {
		t.Error("probe must release its connection")
	}
}

func TestProbeInvalidConnection(t *testing.T) {
	p := newTestPool(t, 1, 1, func() *mockConn { return &mockConn{invalid: true} })
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp ProbeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid {
		t.Error("expected an invalid connection")
	}
	if p.Stats().ReplacedCount != 1 {
		t.Errorf("expected the invalid connection to be replaced, stats %+v", p.Stats())
	}
}

func TestProbeExhausted(t *testing.T) {
	p := newTestPool(t, 0, 0, nil)
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != apperrors.CodeExhausted {
		t.Errorf("code = %d, want %d", resp.Code, apperrors.CodeExhausted)
	}
	if resp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestProbeClosedPool(t *testing.T) {
	p := newTestPool(t, 1, 1, nil)
	s := newTestServer(t, Config{Pool: p})
	p.Close()

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestProbeReleaseFailure(t *testing.T) {
	p := newTestPool(t, 1, 1, func() *mockConn {
		return &mockConn{probeErr: errors.New("driver: secret host 10.0.0.5 unreachable")}
	})
	s := newTestServer(t, Config{Pool: p})

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("driver details leaked: %s", w.Body.String())
	}
}

func TestProbeRateLimit(t *testing.T) {
	p := newTestPool(t, 1, 2, nil)
	s := newTestServer(t, Config{Pool: p, ProbeRate: 0.001, ProbeBurst: 1})

	if w := do(s, http.MethodPost, "/api/probe"); w.Code != http.StatusOK {
		t.Fatalf("first probe status = %d, want %d", w.Code, http.StatusOK)
	}

	w := do(s, http.MethodPost, "/api/probe")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second probe status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Other endpoints are not throttled.
	if w := do(s, http.MethodGet, "/api/stats"); w.Code != http.StatusOK {
		t.Errorf("stats status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestProbeMethodNotGet(t *testing.T) {
	p := newTestPool(t, 1, 1, nil)
	s := newTestServer(t, Config{Pool: p})

	if w := do(s, http.MethodGet, "/api/probe"); w.Code == http.StatusOK {
		t.Error("GET /api/probe should not be served")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exhausted", pool.ErrPoolExhausted, http.StatusServiceUnavailable},
		{"new connection", pool.ErrNewConnection, http.StatusServiceUnavailable},
		{"circuit open", resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"closed", pool.ErrPoolClosed, http.StatusServiceUnavailable},
		{"invalid handle", pool.ErrInvalidHandle, http.StatusBadRequest},
		{"release", pool.ErrRelease, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestServerStartStop(t *testing.T) {
	p := newTestPool(t, 1, 1, nil)
	s := newTestServer(t, Config{Pool: p, ListenAddr: "127.0.0.1:0"})

	if s.Addr() != "" {
		t.Error("Addr should be empty before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}
