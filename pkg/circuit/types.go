// Package circuit implements a protective circuit breaker with rolling
// response-time metrics and an adaptive background monitor.
package circuit

import (
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Normal operation, calls allowed.
	StateOpen                  // Cooling down, calls rejected.
	StateHalfOpen              // Probing, calls allowed until the probe verdict.
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

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Notification event names.
const (
	EventStateChange = "state_change"
	EventOpen        = "open"
	EventHalfOpen    = "half_open"
	EventClosed      = "closed"
	EventRejected    = "rejected"
	EventSuccess     = "success"
	EventFailure     = "failure"
)

// Transition reasons.
const (
	ReasonThreshold   = "failure_threshold"
	ReasonProbeFailed = "probe_failed"
	ReasonProbeOK     = "probe_succeeded"
	ReasonCooldown    = "cooldown_elapsed"
	ReasonForcedProbe = "forced_probe"
	ReasonReset       = "reset"
)

const (
	// maxResponseTimes is the history length that triggers a trim.
	maxResponseTimes = 1000
	// keptResponseTimes is the history length kept after a trim.
	keptResponseTimes = 500
	// averageWindow is the number of recent samples in the rolling average.
	averageWindow = 100
	// minAdaptiveThreshold is the floor of the adaptive threshold reduction.
	minAdaptiveThreshold = 3
)

// Config holds breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a probe is allowed.
	ResetTimeout time.Duration
	// MonitoringPeriod is the period of the adaptive monitor. Zero disables it.
	MonitoringPeriod time.Duration
	// HalfOpenRequests is the number of consecutive probe successes needed to close.
	HalfOpenRequests int
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MonitoringPeriod: 10 * time.Second,
		HalfOpenRequests: 1,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.FailureThreshold < 1 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.HalfOpenRequests < 1 {
		c.HalfOpenRequests = def.HalfOpenRequests
	}
	if c.MonitoringPeriod < 0 {
		c.MonitoringPeriod = 0
	}
	return c
}

// Transition is one entry of the state transition log.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// Notification is the payload of every breaker event.
type Notification struct {
	Breaker     string
	Event       string
	From        State
	To          State
	At          time.Time
	Reason      string
	Failures    int
	NextAttempt time.Time
	Duration    time.Duration
	Err         error
}

// Snapshot is a point-in-time view of the breaker state.
type Snapshot struct {
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	Successes       int       `json:"successes"`
	LastFailureTime time.Time `json:"last_failure_time"`
	// NextAttemptTime is zero unless State is StateOpen.
	NextAttemptTime time.Time `json:"next_attempt_time"`
	IsOpen          bool      `json:"is_open"`
	CanAttempt      bool      `json:"can_attempt"`
}

// Metrics aggregates breaker counters.
type Metrics struct {
	TotalRequests       int64         `json:"total_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	RejectedRequests    int64         `json:"rejected_requests"`
	SuccessRate         float64       `json:"success_rate"`
	FailureRate         float64       `json:"failure_rate"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	CurrentState        State         `json:"current_state"`
	TimeInState         time.Duration `json:"time_in_state"`
	FailureThreshold    int           `json:"failure_threshold"`
	StateChanges        []Transition  `json:"state_changes"`
}
