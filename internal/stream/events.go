// Package stream keeps a server-push event stream alive behind a circuit breaker.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"Momentum/pkg/circuit"
	"Momentum/pkg/emitter"
)

// Public events emitted by a Connection.
const (
	EventOpen            = "open"
	EventMessage         = "message"
	EventError           = "error"
	EventClose           = "close"
	EventHeartbeat       = "heartbeat"
	EventCircuitOpen     = "circuit_open"
	EventCircuitHalfOpen = "circuit_half_open"
	EventCircuitClosed   = "circuit_closed"
	EventRequestRejected = "request_rejected"
)

// Events emitted by a Supervisor about the connection it observes.
const (
	EventConnectionOpen  = "connection_open"
	EventConnectionClose = "connection_close"
	EventConnectionError = "connection_error"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Name string
	At   time.Time
	// Data is the decoded payload of a message event.
	Data any
	// Raw is the payload text of a message event.
	Raw json.RawMessage
	Err error
	// Circuit describes the breaker transition or rejection behind a circuit event.
	Circuit *circuit.Notification
}

// Lifecycle signals a Conn reports to its Supervisor.
const (
	SignalOpened  = "opened"
	SignalClosed  = "closed"
	SignalErrored = "errored"
	SignalMessage = "message"
)

// Signal carries the error of an errored signal or the cause of a closed one.
// A closed signal caused by the owner closing the connection carries streamerrors.ErrClosed.
type Signal struct {
	Err error
}

// Conn is a connection a Supervisor can reopen and force closed.
type Conn interface {
	// Open establishes the connection. It must not report SignalErrored for its own failure;
	// the returned error is recorded by the caller.
	Open(ctx context.Context) error
	Connected() bool
	// Disconnect drops the current connection, reporting cause with SignalClosed.
	Disconnect(cause error)
	Signals() *emitter.Emitter[Signal]
}
