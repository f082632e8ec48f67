package model

import "time"

// CircuitOpenedEvent is sent when the stream breaker opens.
type CircuitOpenedEvent struct {
	StreamID    string    `json:"stream_id"`
	URL         string    `json:"url"`
	Reason      string    `json:"reason"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	OpenedAt    time.Time `json:"opened_at"`
	NextAttempt time.Time `json:"next_attempt"`
}

// CircuitRecoveredEvent is sent when the stream breaker closes again after being open.
type CircuitRecoveredEvent struct {
	StreamID    string        `json:"stream_id"`
	URL         string        `json:"url"`
	Reason      string        `json:"reason"`
	RecoveredAt time.Time     `json:"recovered_at"`
	Downtime    time.Duration `json:"downtime"`
}

// StreamStatus is the published view of a stream connection.
// It is informational only and never used to restore state.
type StreamStatus struct {
	StreamID          string    `json:"stream_id"`
	URL               string    `json:"url"`
	Connected         bool      `json:"connected"`
	CircuitState      string    `json:"circuit_state"`
	Failures          int       `json:"failures"`
	NextAttempt       time.Time `json:"next_attempt,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastMessageAt     time.Time `json:"last_message_at,omitempty"`
	EventType         string    `json:"event_type,omitempty"`
	TotalRequests     int64     `json:"total_requests"`
	FailedRequests    int64     `json:"failed_requests"`
	RejectedRequests  int64     `json:"rejected_requests"`
	SuccessRate       float64   `json:"success_rate"`
	FailureThreshold  int       `json:"failure_threshold"`
	MessagesReceived  int64     `json:"messages_received"`
	UpdatedAt         time.Time `json:"updated_at"`
}
