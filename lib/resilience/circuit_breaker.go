// Package resilience guards connection factories with a circuit breaker.
//
// When a database stops accepting connections, every refill and every
// replacement on release would otherwise wait on a dial that is bound to fail.
// The breaker counts consecutive open failures and, once tripped, rejects
// opens immediately until a reset timeout has passed.
//
// State transitions:
//
//	Closed (normal) -> Open (failing) -> HalfOpen (probing) -> Closed
//	                     ^                    |
//	                     +--------------------+ (if a probe fails)
package resilience

import (
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed is the normal operating state: opens pass through.
	StateClosed State = iota
	// StateOpen means the breaker has tripped: opens fail immediately.
	StateOpen
	// StateHalfOpen means a limited number of opens are let through as probes.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures the circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of successful probes in half-open state
	// needed to close the breaker again.
	SuccessThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// MaxHalfOpen is the number of concurrent probes allowed in half-open state.
	MaxHalfOpen int
}

// DefaultConfig returns defaults suited to database dials.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		ResetTimeout:     10 * time.Second,
		MaxHalfOpen:      1,
	}
}

// withDefaults fills zero or negative fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.MaxHalfOpen <= 0 {
		c.MaxHalfOpen = d.MaxHalfOpen
	}
	return c
}

// Breaker is a circuit breaker for one backend.
type Breaker struct {
	mu     sync.Mutex
	config Config
	name   string
	now    func() time.Time

	state    State
	failures int
	probes   int
	passed   int

	lastFailure time.Time
	openedAt    time.Time

	onStateChange func(from, to State)
}

// New creates a closed breaker. Zero fields in cfg take their defaults.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		config: cfg.withDefaults(),
		name:   name,
		now:    time.Now,
		state:  StateClosed,
	}
}

// OnStateChange registers fn to be called, on its own goroutine, after
// every state transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports half-open even before the next call moves it there.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// allow reports whether a call may proceed. Caller must hold the lock.
func (b *Breaker) allowLocked() bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return false
		}
		b.transitionLocked(StateHalfOpen)
		b.probes = 1
		return true
	case StateHalfOpen:
		if b.probes < b.config.MaxHalfOpen {
			b.probes++
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) recordSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.passed++
		if b.probes > 0 {
			b.probes--
		}
		if b.passed >= b.config.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) recordFailureLocked() {
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}
}

// transitionLocked changes state and resets the counters the new state uses.
// Caller must hold the lock.
func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.passed = 0
		b.probes = 0
	case StateOpen:
		b.openedAt = b.now()
		b.passed = 0
		b.probes = 0
		CircuitBreakerTrips.Inc()
	case StateHalfOpen:
		b.passed = 0
		b.probes = 0
	}
	CircuitBreakerState.Set(int64(to))

	log.WithField("circuit", b.name).
		WithField("from", from.String()).
		WithField("to", to.String()).
		Info("circuit breaker state transition")

	if b.onStateChange != nil {
		go b.onStateChange(from, to)
	}
}

// Do runs fn if the breaker allows it and records the outcome.
// A rejected call returns ErrCircuitOpen without running fn.
func (b *Breaker) Do(fn func() error) error {
	return b.DoCounting(fn, nil)
}

// DoCounting is Do where only errors for which isFailure returns true count
// against the backend. Other errors are returned unrecorded and free their
// half-open slot. A nil isFailure counts every error.
func (b *Breaker) DoCounting(fn func() error, isFailure func(error) bool) error {
	b.mu.Lock()
	ok := b.allowLocked()
	b.mu.Unlock()
	if !ok {
		CircuitBreakerRejections.Inc()
		log.WithField("circuit", b.name).Debug("call rejected by open circuit")
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && isFailure != nil && !isFailure(err) {
		if b.state == StateHalfOpen && b.probes > 0 {
			b.probes--
		}
		log.WithField("circuit", b.name).WithError(err).Debug("error not counted against circuit")
		return err
	}
	if err != nil {
		CircuitBreakerFailures.Inc()
		b.recordFailureLocked()
		return err
	}
	CircuitBreakerSuccesses.Inc()
	b.recordSuccessLocked()
	return nil
}

// Trip forces the breaker open.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateOpen)
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.failures = 0
	b.openedAt = time.Time{}
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	OpenedAt    time.Time `json:"opened_at,omitzero"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:        b.name,
		State:       state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		OpenedAt:    b.openedAt,
	}
}
