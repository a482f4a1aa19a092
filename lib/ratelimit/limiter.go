// Package ratelimit provides token bucket rate limiting.
// The status server uses it to throttle probe requests, each of which takes a
// connection out of the pool.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket rate limiter.
type Limiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// New creates a limiter that refills rate tokens per second up to burst.
// The bucket starts full.
func New(rate float64, burst int) *Limiter {
	return newWithClock(rate, burst, time.Now)
}

func newWithClock(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     now(),
		now:      now,
	}
}

// Allow consumes one token and reports whether one was available.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN consumes n tokens if all n are available.
func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	needed := float64(n)
	if l.tokens < needed {
		return false
	}
	l.tokens -= needed
	return true
}

// Tokens returns the number of available tokens.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

func (l *Limiter) refillLocked() {
	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}

// full reports whether the bucket has been untouched for idle and would be
// full once refilled. It does not move the bucket's last-use time.
func (l *Limiter) full(idle time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idleFor := l.now().Sub(l.last)
	tokens := l.tokens + idleFor.Seconds()*l.rate
	return idleFor > idle && tokens >= l.capacity
}

// KeyedLimiter keeps one Limiter per key, typically a client address.
// Buckets that sit full for longer than the cleanup interval are dropped.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	rate     float64
	burst    int
	cleanup  time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewKeyed creates a per-key limiter and starts its cleanup goroutine.
// Call Close to stop it.
func NewKeyed(rate float64, burst int, cleanup time.Duration) *KeyedLimiter {
	kl := &KeyedLimiter{
		limiters: make(map[string]*Limiter),
		rate:     rate,
		burst:    burst,
		cleanup:  cleanup,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (kl *KeyedLimiter) Close() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}

// Allow consumes a token from key's bucket.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	l, ok := kl.limiters[key]
	if !ok {
		l = newWithClock(kl.rate, kl.burst, kl.now)
		kl.limiters[key] = l
	}
	kl.mu.Unlock()

	return l.Allow()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

func (kl *KeyedLimiter) sweep() {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, l := range kl.limiters {
		if l.full(kl.cleanup) {
			delete(kl.limiters, key)
		}
	}
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}
