package pool

import (
	"time"
)

// Resource is a raw connection produced by a Factory.
// The pool treats it as an opaque, independently closable handle.
type Resource interface {
	// IsValid reports whether the connection is still usable. A zero timeout
	// means the check is not bounded in time.
	IsValid(timeout time.Duration) (bool, error)
	// Close closes the connection.
	Close() error
}

// Factory opens raw connections to a target.
// Any error it returns is treated as opaque by the pool.
type Factory interface {
	Open(target string, options map[string]string) (Resource, error)
}

// FactoryFunc adapts an ordinary function to the Factory interface.
type FactoryFunc func(target string, options map[string]string) (Resource, error)

// Open calls f(target, options).
func (f FactoryFunc) Open(target string, options map[string]string) (Resource, error) {
	return f(target, options)
}

// closeQuietly closes r and logs, but does not return, any error.
func closeQuietly(r Resource) {
	if err := r.Close(); err != nil {
		log.WithError(err).Warn("there was an error closing the connection")
	}
}
