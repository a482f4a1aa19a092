package pool

import (
	"sync"
	"time"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
)

// Handle grants a client exclusive use of one pooled connection until it is
// passed to Pool.Release. After release every forwarded operation fails with
// ErrReleasedUse, and the handle no longer references the raw connection.
//
// A Handle must have one logical owner at a time, but its methods are safe to
// call while another goroutine releases it.
type Handle struct {
	pool *Pool

	mu       sync.Mutex
	raw      Resource
	released bool
}

func newHandle(p *Pool, r Resource) *Handle {
	return &Handle{pool: p, raw: r}
}

// Pool returns the pool the handle was obtained from.
func (h *Handle) Pool() *Pool {
	return h.pool
}

// IsReleased reports whether the handle has been released back to its pool.
func (h *Handle) IsReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Raw returns the underlying connection for typed access. The result is not
// gated: it keeps working after Release, so callers must not keep it. Typed
// forwarders should call Raw on every operation instead.
func (h *Handle) Raw() (Resource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, apperrors.WrapKind(ErrReleasedUse, "connection has been released back to its pool", nil)
	}
	return h.raw, nil
}

// IsValid forwards to the underlying connection.
func (h *Handle) IsValid(timeout time.Duration) (bool, error) {
	r, err := h.Raw()
	if err != nil {
		return false, err
	}
	return r.IsValid(timeout)
}

// Close forwards to the underlying connection. It does not return the
// connection to the pool; use Pool.Release for that.
func (h *Handle) Close() error {
	r, err := h.Raw()
	if err != nil {
		return err
	}
	return r.Close()
}

// markReleased flips the released flag and hands the raw connection back to
// the caller. ok is false if the handle was already released.
func (h *Handle) markReleased() (r Resource, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, false
	}
	h.released = true
	r, h.raw = h.raw, nil
	return r, true
}
