// Package pool provides a bounded, elastic pool of database connections.
//
// The pool expands up to a fixed maximum as connections are obtained and
// contracts down to a fixed minimum as they are returned. It never blocks:
// when no connection can be handed out, Acquire fails immediately with
// ErrPoolExhausted and the caller decides whether to retry.
//
// The pool supports:
//   - A low-water mark (MinSize) of cached idle connections, refilled on every acquire
//   - A hard ceiling (MaxSize) on open connections, idle plus checked out
//   - Validity probing of returned connections, with replacement of broken ones
//   - Handles that can be released exactly once and are unusable afterwards
//   - Metrics for pool utilization
//
// # Basic Usage
//
//	f, err := factory.NewSQL("sqlite3")
//	if err != nil {
//	    return err
//	}
//
//	p, err := pool.New(f, "file:app.db", nil, pool.Config{MinSize: 2, MaxSize: 10})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	h, err := p.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer p.Release(h)
//
//	// Use the handle...
//
// # Sizing
//
// With MinSize == 0 the pool never caches: every Acquire opens a fresh
// connection until MaxSize are open, and every Release closes it.
//
// With MinSize > 0 the idle cache is filled to MinSize at construction.
// Acquire pops the oldest idle connection and tops the cache back up to
// MinSize as long as fewer than MaxSize connections are open. An empty cache
// means every permitted connection is checked out, so Acquire fails.
// Release closes the returned connection when the cache already holds
// MinSize connections, and otherwise probes it with IsValid(0) and caches it,
// or a freshly opened replacement if the probe reports it invalid.
//
// # Metrics
//
// Pool utilization metrics are registered with the metrics package:
//   - dbpool_pool_connections_max: Maximum pool size
//   - dbpool_pool_connections_min: Minimum pool size
//   - dbpool_pool_connections_open: Current open connections
//   - dbpool_pool_connections_idle: Current idle connections
//   - dbpool_pool_connections_in_use: Connections currently in use
//   - dbpool_pool_acquire_total: Total acquire attempts
//   - dbpool_pool_acquire_failed_total: Failed acquires
//   - dbpool_pool_release_total: Total releases
//   - dbpool_pool_release_failed_total: Failed releases
//   - dbpool_pool_replaced_total: Invalid connections replaced on release
package pool
