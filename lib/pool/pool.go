// Package pool provides a bounded, elastic connection pool.
// It caches a minimum number of idle connections, enforces a maximum number
// of open connections, and reports exhaustion immediately instead of waiting.
package pool

import (
	"errors"
	"maps"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
)

// errNilResource is returned when a factory reports success without a connection.
var errNilResource = errors.New("factory returned a nil connection")

// Config configures the pool bounds.
type Config struct {
	// MinSize is the number of idle connections the pool tries to keep cached.
	// Zero disables caching entirely.
	// Default: 2
	MinSize int
	// MaxSize is the maximum number of open connections, idle plus checked out.
	// Default: 10
	MaxSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSize: 2,
		MaxSize: 10,
	}
}

// Validate checks the bounds. It does not apply defaults.
func (c Config) Validate() error {
	if c.MinSize < 0 {
		return apperrors.WrapKind(ErrPoolConfig, "pool minimum connections must be >= 0", nil)
	}
	if c.MaxSize < 0 {
		return apperrors.WrapKind(ErrPoolConfig, "pool maximum connections must be >= 0", nil)
	}
	if c.MaxSize < c.MinSize {
		return apperrors.WrapKind(ErrPoolConfig, "pool maximum must be >= the minimum connections", nil)
	}
	return nil
}

// Pool is a connection pool that expands, up to a maximum, as connections are
// obtained and contracts, down to a minimum, as they are returned.
// All state transitions happen under a single mutex.
type Pool struct {
	factory Factory
	target  string
	options map[string]string
	config  Config

	mu      sync.Mutex
	idle    []Resource // FIFO, oldest first
	numOpen int        // idle plus checked out
	closed  bool

	// Metrics
	acquireCount   uint64
	acquireSuccess uint64
	acquireFailed  uint64
	releaseCount   uint64
	releaseFailed  uint64
	openCount      uint64
	replacedCount  uint64
	discardCount   uint64
}

// New creates a pool over factory and fills it to cfg.MinSize.
// target and options are passed to the factory unchanged on every open.
//
// Invalid bounds or a nil factory return ErrPoolConfig before anything is
// opened. If the initial fill fails, the connections opened so far are
// closed and ErrInitialization is returned.
func New(factory Factory, target string, options map[string]string, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if isNilFactory(factory) {
		return nil, apperrors.WrapKind(ErrPoolConfig, "pool factory must be supplied", nil)
	}

	p := &Pool{
		factory: factory,
		target:  target,
		options: maps.Clone(options),
		config:  cfg,
		idle:    make([]Resource, 0, cfg.MinSize),
	}

	p.mu.Lock()
	err := p.refillLocked()
	if err != nil {
		for _, r := range p.idle {
			p.discardLocked(r)
		}
		p.idle = nil
		p.closed = true
	}
	p.mu.Unlock()

	if err != nil {
		return nil, apperrors.WrapKind(ErrInitialization, "pool initialization failed", err)
	}

	log.WithField("minSize", cfg.MinSize).WithField("maxSize", cfg.MaxSize).Info("created expanding pool")
	return p, nil
}

// isNilFactory catches a nil interface and a typed nil such as (*SQL)(nil).
func isNilFactory(f Factory) bool {
	if f == nil {
		return true
	}
	v := reflect.ValueOf(f)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// open asks the factory for a new connection. Counts are left to the caller.
func (p *Pool) open() (Resource, error) {
	r, err := p.factory.Open(p.target, p.options)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errNilResource
	}
	atomic.AddUint64(&p.openCount, 1)
	return r, nil
}

// refillLocked opens connections into the idle cache until it holds MinSize
// or MaxSize connections are open. It stops at the first factory error,
// keeping whatever it opened before. Caller must hold the lock.
func (p *Pool) refillLocked() error {
	needed := p.numOpen < p.config.MaxSize && len(p.idle) < p.config.MinSize
	if !needed {
		return nil
	}
	log.Debug("refilling pool")

	for p.numOpen < p.config.MaxSize && len(p.idle) < p.config.MinSize {
		r, err := p.open()
		if err != nil {
			return err
		}
		p.idle = append(p.idle, r)
		p.numOpen++
	}

	p.logStateLocked()
	return nil
}

// discardLocked closes r and stops counting it. Caller must hold the lock.
func (p *Pool) discardLocked(r Resource) {
	closeQuietly(r)
	p.numOpen--
	atomic.AddUint64(&p.discardCount, 1)
}

// Acquire obtains a connection from the pool. It never blocks waiting for a
// connection to be returned.
//
// It fails with ErrPoolExhausted when no connection can be handed out, with
// ErrNewConnection when the factory fails to open or refill, and with
// ErrPoolClosed after Close. When a refill fails after an idle connection
// was taken, that connection is closed rather than returned to the cache.
func (p *Pool) Acquire() (*Handle, error) {
	start := time.Now()
	atomic.AddUint64(&p.acquireCount, 1)
	PoolAcquireTotal.Inc()

	p.mu.Lock()
	h, err := p.acquireLocked()
	p.mu.Unlock()

	PoolAcquireLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		atomic.AddUint64(&p.acquireFailed, 1)
		PoolAcquireFailedTotal.Inc()
		return nil, err
	}
	atomic.AddUint64(&p.acquireSuccess, 1)
	return h, nil
}

func (p *Pool) acquireLocked() (*Handle, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}

	// Not caching: hand out a fresh connection while under the maximum.
	if p.config.MinSize == 0 {
		if p.numOpen >= p.config.MaxSize {
			return nil, apperrors.WrapKind(ErrPoolExhausted, "maximum number of connections reached", nil)
		}
		r, err := p.open()
		if err != nil {
			return nil, apperrors.WrapKind(ErrNewConnection, "a database error occurred trying to get a new connection", err)
		}
		p.numOpen++
		log.WithField("numOpen", p.numOpen).Debug("opened uncached connection")
		return newHandle(p, r), nil
	}

	if len(p.idle) == 0 {
		log.WithField("numOpen", p.numOpen).Warn("get connection from pool was unsuccessful: pool is out of connections")
		return nil, apperrors.WrapKind(ErrPoolExhausted, "pool is out of connections", nil)
	}

	r := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]

	if err := p.refillLocked(); err != nil {
		p.discardLocked(r)
		return nil, apperrors.WrapKind(ErrNewConnection, "a database error occurred while trying to refill the pool", err)
	}

	log.Debug("obtained connection from pool")
	p.logStateLocked()
	return newHandle(p, r), nil
}

// Release returns a connection to the pool. A handle can be released only
// once; it is unusable afterwards, whether or not Release succeeds.
//
// If the idle cache already holds MinSize connections the returned
// connection is closed, ignoring close errors. Otherwise it is probed with
// IsValid(0) and cached if valid; an invalid connection is closed and a
// freshly opened one is cached in its place. If the probe or the replacement
// fails, the connection is counted as lost and ErrRelease is returned.
func (p *Pool) Release(h *Handle) error {
	if h == nil {
		return apperrors.WrapKind(ErrInvalidHandle, "connection cannot be nil", nil)
	}
	if h.pool != p {
		return apperrors.WrapKind(ErrInvalidHandle, "connection was not obtained from this pool", nil)
	}

	atomic.AddUint64(&p.releaseCount, 1)
	PoolReleaseTotal.Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := h.markReleased()
	if !ok {
		return apperrors.WrapKind(ErrAlreadyReleased, "connection already released back to pool", nil)
	}

	if err := p.releaseLocked(r); err != nil {
		atomic.AddUint64(&p.releaseFailed, 1)
		PoolReleaseFailedTotal.Inc()
		log.WithError(err).Error("a database error occurred during a connection release")
		p.logStateLocked()
		return err
	}

	p.logStateLocked()
	return nil
}

func (p *Pool) releaseLocked(r Resource) error {
	if p.closed || len(p.idle) >= p.config.MinSize {
		log.Debug("pool has enough connections, closing returned connection")
		p.discardLocked(r)
		return nil
	}

	valid, err := r.IsValid(0)
	if err != nil {
		p.discardLocked(r)
		return apperrors.WrapKind(ErrRelease, "could not validate released connection", err)
	}
	if valid {
		log.Debug("connection is good, placing it back in the pool")
		p.idle = append(p.idle, r)
		return nil
	}

	log.Warn("connection is no longer valid, a new connection is being placed in the pool")
	p.discardLocked(r)
	atomic.AddUint64(&p.replacedCount, 1)
	PoolReplacedTotal.Inc()

	fresh, err := p.open()
	if err != nil {
		return apperrors.WrapKind(ErrRelease, "could not replace invalid connection", err)
	}
	p.idle = append(p.idle, fresh)
	p.numOpen++
	return nil
}

// Close closes every idle connection and stops handing out new ones.
// Connections still checked out are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true

	for _, r := range p.idle {
		p.discardLocked(r)
	}
	p.idle = nil

	log.WithField("checkedOut", p.numOpen).Debug("pool closed")
	return nil
}

// logStateLocked logs a brief summary of the pool state. Caller must hold the lock.
func (p *Pool) logStateLocked() {
	log.WithField("max", p.config.MaxSize).
		WithField("total", p.numOpen).
		WithField("cached", len(p.idle)).
		Debug("pool state")
}

// MinSize returns the configured low-water mark.
func (p *Pool) MinSize() int {
	return p.config.MinSize
}

// MaxSize returns the configured maximum number of open connections.
func (p *Pool) MaxSize() int {
	return p.config.MaxSize
}

// NumOpen returns the number of open connections, idle plus checked out.
func (p *Pool) NumOpen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numOpen
}

// Len returns the number of idle connections. The idle cache itself is
// never exposed.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Stats holds a snapshot of pool state and counters.
type Stats struct {
	// MinSize is the configured low-water mark.
	MinSize int `json:"min_size"`
	// MaxSize is the maximum pool size.
	MaxSize int `json:"max_size"`
	// NumOpen is the current number of open connections.
	NumOpen int `json:"num_open"`
	// NumIdle is the current number of idle connections.
	NumIdle int `json:"num_idle"`
	// NumInUse is the number of connections currently checked out.
	NumInUse int `json:"num_in_use"`
	// Closed reports whether Close has been called.
	Closed bool `json:"closed"`
	// AcquireCount is the total number of acquire attempts.
	AcquireCount uint64 `json:"acquire_count"`
	// AcquireSuccess is the number of successful acquires.
	AcquireSuccess uint64 `json:"acquire_success"`
	// AcquireFailed is the number of failed acquires.
	AcquireFailed uint64 `json:"acquire_failed"`
	// ReleaseCount is the number of release attempts on this pool's handles.
	ReleaseCount uint64 `json:"release_count"`
	// ReleaseFailed is the number of releases that returned an error.
	ReleaseFailed uint64 `json:"release_failed"`
	// OpenCount is the number of connections the factory has opened.
	OpenCount uint64 `json:"open_count"`
	// ReplacedCount is the number of invalid connections replaced on release.
	ReplacedCount uint64 `json:"replaced_count"`
	// DiscardCount is the number of connections closed by the pool.
	DiscardCount uint64 `json:"discard_count"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		MinSize:        p.config.MinSize,
		MaxSize:        p.config.MaxSize,
		NumOpen:        p.numOpen,
		NumIdle:        len(p.idle),
		NumInUse:       p.numOpen - len(p.idle),
		Closed:         p.closed,
		AcquireCount:   atomic.LoadUint64(&p.acquireCount),
		AcquireSuccess: atomic.LoadUint64(&p.acquireSuccess),
		AcquireFailed:  atomic.LoadUint64(&p.acquireFailed),
		ReleaseCount:   atomic.LoadUint64(&p.releaseCount),
		ReleaseFailed:  atomic.LoadUint64(&p.releaseFailed),
		OpenCount:      atomic.LoadUint64(&p.openCount),
		ReplacedCount:  atomic.LoadUint64(&p.replacedCount),
		DiscardCount:   atomic.LoadUint64(&p.discardCount),
	}
}
