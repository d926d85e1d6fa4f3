package metrics

import (
	"time"
)

// Collector records pipeline and backend metrics. Implementations export them to
// a backend such as Prometheus.
type Collector interface {
	// Capture pipeline
	RecordStage(stage string, success bool, duration time.Duration)
	RecordQuality(side string, acceptable bool)
	RecordVerdict(valid bool, overridable bool, riskScore float64)
	RecordSubmission(outcome string)

	// Transport
	RecordRetry(upstream string)
	RecordCircuitState(upstream string, state CircuitState)

	// Backend
	RecordIntake(outcome string)
	RecordTransition(from, to string)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every metric. It is the default when metrics are not wired.
type NoOpCollector struct{}

func (NoOpCollector) RecordStage(stage string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordQuality(side string, acceptable bool) {}
func (NoOpCollector) RecordVerdict(valid bool, overridable bool, riskScore float64) {}
func (NoOpCollector) RecordSubmission(outcome string) {}
func (NoOpCollector) RecordRetry(upstream string) {}
func (NoOpCollector) RecordCircuitState(upstream string, state CircuitState) {}
func (NoOpCollector) RecordIntake(outcome string) {}
func (NoOpCollector) RecordTransition(from, to string) {}
