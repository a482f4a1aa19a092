package pool

import "github.com/go-i2p/dbpool/lib/metrics"

// Pool utilization metrics
var (
	// PoolConnectionsMax is the maximum pool size.
	PoolConnectionsMax = metrics.NewGauge(
		"dbpool_pool_connections_max",
		"Maximum number of open connections",
	)
	// PoolConnectionsMin is the configured low-water mark.
	PoolConnectionsMin = metrics.NewGauge(
		"dbpool_pool_connections_min",
		"Number of idle connections the pool keeps cached",
	)
	// PoolConnectionsOpen is the current number of open connections.
	PoolConnectionsOpen = metrics.NewGauge(
		"dbpool_pool_connections_open",
		"Current number of open connections",
	)
	// PoolConnectionsIdle is the current number of idle connections.
	PoolConnectionsIdle = metrics.NewGauge(
		"dbpool_pool_connections_idle",
		"Current number of idle connections in the pool",
	)
	// PoolConnectionsInUse is the number of connections currently in use.
	PoolConnectionsInUse = metrics.NewGauge(
		"dbpool_pool_connections_in_use",
		"Number of connections currently checked out",
	)
	// PoolAcquireTotal is the total number of acquire attempts.
	PoolAcquireTotal = metrics.NewCounter(
		"dbpool_pool_acquire_total",
		"Total number of connection acquire attempts",
	)
	// PoolAcquireFailedTotal is the number of failed acquires.
	PoolAcquireFailedTotal = metrics.NewCounter(
		"dbpool_pool_acquire_failed_total",
		"Total number of failed connection acquires",
	)
	// PoolReleaseTotal is the number of releases.
	PoolReleaseTotal = metrics.NewCounter(
		"dbpool_pool_release_total",
		"Total number of connection releases",
	)
	// PoolReleaseFailedTotal is the number of releases that lost their connection.
	PoolReleaseFailedTotal = metrics.NewCounter(
		"dbpool_pool_release_failed_total",
		"Total number of releases that failed to validate or replace a connection",
	)
	// PoolReplacedTotal is the number of invalid connections replaced on release.
	PoolReplacedTotal = metrics.NewCounter(
		"dbpool_pool_replaced_total",
		"Total number of invalid connections replaced on release",
	)
	// PoolAcquireLatency tracks time spent acquiring connections.
	PoolAcquireLatency = metrics.NewHistogram(
		"dbpool_pool_acquire_duration_seconds",
		"Time spent acquiring a connection from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics updates the pool gauges from Stats.
func UpdateMetrics(stats Stats) {
	PoolConnectionsMax.Set(int64(stats.MaxSize))
	PoolConnectionsMin.Set(int64(stats.MinSize))
	PoolConnectionsOpen.Set(int64(stats.NumOpen))
	PoolConnectionsIdle.Set(int64(stats.NumIdle))
	PoolConnectionsInUse.Set(int64(stats.NumInUse))
}
