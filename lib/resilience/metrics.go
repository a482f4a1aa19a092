package resilience

import (
	"github.com/go-i2p/dbpool/lib/metrics"
)

// Circuit breaker metrics for Prometheus exposition.
var (
	// CircuitBreakerState tracks the state of the most recently transitioned breaker.
	// 0 = closed, 1 = open, 2 = half-open
	CircuitBreakerState = metrics.NewGauge(
		"dbpool_circuit_breaker_state",
		"Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
	)

	// CircuitBreakerTrips counts the number of times breakers have opened.
	CircuitBreakerTrips = metrics.NewCounter(
		"dbpool_circuit_breaker_trips_total",
		"Total number of times circuit breakers have opened",
	)

	CircuitBreakerSuccesses = metrics.NewCounter(
		"dbpool_circuit_breaker_successes_total",
		"Total connection opens that succeeded through a circuit breaker",
	)

	CircuitBreakerFailures = metrics.NewCounter(
		"dbpool_circuit_breaker_failures_total",
		"Total connection opens that failed through a circuit breaker",
	)

	// CircuitBreakerRejections counts opens rejected without dialing.
	CircuitBreakerRejections = metrics.NewCounter(
		"dbpool_circuit_breaker_rejections_total",
		"Total connection opens rejected by open circuit breakers",
	)
)
