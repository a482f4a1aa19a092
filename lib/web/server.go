// Package web provides the HTTP status surface for a connection pool.
// It serves pool statistics as JSON, metrics in Prometheus text format,
// a liveness check, and a probe endpoint that round-trips one connection.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/go-i2p/dbpool/lib/metrics"
	"github.com/go-i2p/dbpool/lib/pool"
	"github.com/go-i2p/dbpool/lib/ratelimit"
	"github.com/go-i2p/dbpool/lib/resilience"
)

// Default probe throttling.
const (
	DefaultProbeRate    = 5.0
	DefaultProbeBurst   = 10
	DefaultProbeTimeout = 2 * time.Second
)

// Server is the status HTTP server.
type Server struct {
	httpServer   *http.Server
	engine       *gin.Engine
	pool         *pool.Pool
	breaker      *resilience.Breaker
	limiter      *ratelimit.KeyedLimiter
	probeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// Config holds web server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8080")
	ListenAddr string
	// Pool is the pool to report on. Required.
	Pool *pool.Pool
	// Breaker guards the pool's factory, if any.
	Breaker *resilience.Breaker
	// ProbeRate is the number of probes per second allowed per client.
	ProbeRate float64
	// ProbeBurst is the probe burst size per client.
	ProbeBurst int
	// ProbeTimeout bounds the validity check done by a probe.
	ProbeTimeout time.Duration
	// Logger is the structured logger
	Logger *slog.Logger
}

// New creates a new status server.
// Call Stop to release the listener and the probe limiter.
func New(cfg Config) (*Server, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("web: pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProbeRate <= 0 {
		cfg.ProbeRate = DefaultProbeRate
	}
	if cfg.ProbeBurst <= 0 {
		cfg.ProbeBurst = DefaultProbeBurst
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		pool:         cfg.Pool,
		breaker:      cfg.Breaker,
		limiter:      ratelimit.NewKeyed(cfg.ProbeRate, cfg.ProbeBurst, 5*time.Minute),
		probeTimeout: cfg.ProbeTimeout,
		logger:       cfg.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.withMiddleware())

	r.GET("/healthz", s.handleLiveness)
	r.GET("/api/stats", s.handleStats)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/api/probe", s.rateLimit(), s.handleProbe)

	s.engine = r
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and for mounting under another server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the server in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("status server started", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the server gracefully. It does not close the pool.
func (s *Server) Stop(ctx context.Context) error {
	s.limiter.Close()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("status server stopped")
	return nil
}

// withMiddleware logs requests, counts them, and sets common headers.
func (s *Server) withMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote", c.Request.RemoteAddr,
		)

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		c.Next()

		metrics.HTTPRequests.Inc()
		s.logger.Debug("response",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// rateLimit rejects clients that probe faster than the configured rate.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.limiter.Allow(ip) {
			s.logger.Warn("probe rate limited", "remote", ip)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
