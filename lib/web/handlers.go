package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/metrics"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/resilience"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Pool    pool.Stats        `json:"pool"`
	Breaker *resilience.Stats `json:"breaker,omitempty"`
}

// ProbeResponse is the body of a successful POST /api/probe.
type ProbeResponse struct {
	Valid      bool    `json:"valid"`
	DurationMS float64 `json:"duration_ms"`
	NumOpen    int     `json:"num_open"`
	NumIdle    int     `json:"num_idle"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// statusFor maps an error to an HTTP status. Transient pool conditions are
// 503 so load balancers and clients back off.
func statusFor(err error) int {
	switch {
	case apperrors.IsRetryable(err), apperrors.IsClosed(err):
		return http.StatusServiceUnavailable
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as an ErrorResponse without leaking driver details.
func (s *Server) writeError(c *gin.Context, err error) {
	var e *apperrors.Error
	if !apperrors.As(err, &e) {
		e = apperrors.FromSentinel(err)
		if e.Code == apperrors.CodeInternal {
			e = apperrors.WrapInternal(err)
		}
	}
	c.JSON(statusFor(err), ErrorResponse{Error: e.SafeMessage(), Code: e.Code})
}

// handleLiveness reports whether the pool is still open.
func (s *Server) handleLiveness(c *gin.Context) {
	if s.pool.Stats().Closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStats returns the pool snapshot and, when present, the breaker state.
func (s *Server) handleStats(c *gin.Context) {
	stats := s.pool.Stats()
	pool.UpdateMetrics(stats)

	resp := StatsResponse{Pool: stats}
	if s.breaker != nil {
		bs := s.breaker.Stats()
		resp.Breaker = &bs
	}
	c.JSON(http.StatusOK, resp)
}

// handleMetrics refreshes the pool gauges and serves the metrics registry.
func (s *Server) handleMetrics(c *gin.Context) {
	pool.UpdateMetrics(s.pool.Stats())
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// handleProbe acquires a connection, checks it, and releases it.
func (s *Server) handleProbe(c *gin.Context) {
	start := time.Now()

	h, err := s.pool.Acquire()
	if err != nil {
		s.logger.Warn("probe acquire failed", "error", err)
		s.writeError(c, err)
		return
	}

	valid, validErr := h.IsValid(s.probeTimeout)
	if err := s.pool.Release(h); err != nil {
		s.logger.Error("probe release failed", "error", err)
		s.writeError(c, err)
		return
	}
	if validErr != nil {
		s.logger.Warn("probe validity check failed", "error", validErr)
		s.writeError(c, apperrors.WrapInternal(validErr))
		return
	}

	stats := s.pool.Stats()
	c.JSON(http.StatusOK, ProbeResponse{
		Valid:      valid,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		NumOpen:    stats.NumOpen,
		NumIdle:    stats.NumIdle,
	})
}
