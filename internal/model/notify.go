package model

import "time"

// Notification kinds carried in the "event" field of webhook payloads.
const (
	NotifyCircuitOpened    = "CIRCUIT_OPENED"
	NotifyCircuitRecovered = "CIRCUIT_RECOVERED"
	NotifyCircuitHalfOpen  = "CIRCUIT_HALF_OPEN"
)

// Notification is the envelope POSTed to webhook receivers.
type Notification struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
