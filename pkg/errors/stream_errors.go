// Package errors provides the stream error taxonomy and classification helpers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// StreamErrorType represents the kind of failure seen on a stream.
type StreamErrorType int

const (
	// ErrorTypeUnknown represents an unclassified error.
	ErrorTypeUnknown StreamErrorType = iota
	// ErrorTypeConnection represents a transport failure opening or reading the stream.
	ErrorTypeConnection
	// ErrorTypeCancellation represents a deliberate close or abort.
	ErrorTypeCancellation
	// ErrorTypeProtocol represents a malformed payload on a data line.
	ErrorTypeProtocol
	// ErrorTypeCircuitOpen represents a call rejected by an open circuit breaker.
	ErrorTypeCircuitOpen
	// ErrorTypeHeartbeatTimeout represents a connection that stopped delivering traffic.
	ErrorTypeHeartbeatTimeout
)

func (t StreamErrorType) String() string {
	switch t {
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeCancellation:
		return "cancellation"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeHeartbeatTimeout:
		return "heartbeat_timeout"
	default:
		return "unknown"
	}
}

// ReasonCircuitOpen is the kratos error reason of CircuitOpenError.
const ReasonCircuitOpen = "CIRCUIT_OPEN"

// ErrCircuitOpen is returned when a breaker rejects a call and no fallback was supplied.
// It is a kratos error so errors.Is matches any copy carrying extra metadata.
var ErrCircuitOpen = kerrors.ServiceUnavailable(ReasonCircuitOpen, "circuit breaker is open")

// ErrClosed is the cancellation cause used when a connection is closed by its owner.
var ErrClosed = errors.New("stream closed")

// NewCircuitOpenError returns ErrCircuitOpen annotated with the breaker name and next attempt time.
func NewCircuitOpenError(name string, nextAttempt time.Time) error {
	return ErrCircuitOpen.WithMetadata(map[string]string{
		"breaker":      name,
		"next_attempt": nextAttempt.Format(time.RFC3339Nano),
	})
}

// StreamError wraps an error with classification information.
type StreamError struct {
	Type        StreamErrorType
	OriginalErr error
	StatusCode  int // HTTP status returned when opening the stream, 0 if none
	Message     string
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Message, e.StatusCode, e.OriginalErr)
	}
	if e.OriginalErr == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *StreamError) Unwrap() error {
	return e.OriginalErr
}

// NewConnectionError wraps a transport failure. statusCode is 0 when no response was received.
func NewConnectionError(err error, statusCode int) *StreamError {
	return &StreamError{
		Type:        ErrorTypeConnection,
		OriginalErr: err,
		StatusCode:  statusCode,
		Message:     "stream connection error",
	}
}

// NewCancellationError wraps a deliberate abort.
func NewCancellationError(cause error) *StreamError {
	if cause == nil {
		cause = context.Canceled
	}
	return &StreamError{
		Type:        ErrorTypeCancellation,
		OriginalErr: cause,
		Message:     "stream cancelled",
	}
}

// NewProtocolError reports an undecodable data line.
func NewProtocolError(line string, err error) *StreamError {
	const maxLine = 64
	if len(line) > maxLine {
		line = line[:maxLine] + "..."
	}
	return &StreamError{
		Type:        ErrorTypeProtocol,
		OriginalErr: err,
		Message:     fmt.Sprintf("malformed data line %q", line),
	}
}

// NewHeartbeatTimeoutError reports that nothing was received for silence.
func NewHeartbeatTimeoutError(silence time.Duration) *StreamError {
	return &StreamError{
		Type:    ErrorTypeHeartbeatTimeout,
		Message: fmt.Sprintf("heartbeat timeout: no traffic for %s", silence.Round(time.Millisecond)),
	}
}

// ClassifyStreamError classifies err into a StreamError.
//
//   - *StreamError → returned as is
//   - context.Canceled, ErrClosed → ErrorTypeCancellation
//   - ErrCircuitOpen → ErrorTypeCircuitOpen
//   - net.Error, io.ErrUnexpectedEOF, context.DeadlineExceeded and connection-like messages → ErrorTypeConnection
func ClassifyStreamError(err error) *StreamError {
	if err == nil {
		return nil
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return NewCancellationError(err)
	}

	if errors.Is(err, ErrCircuitOpen) {
		return &StreamError{
			Type:        ErrorTypeCircuitOpen,
			OriginalErr: err,
			Message:     "circuit breaker is open",
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isConnectionError(err.Error()) {
		return NewConnectionError(err, 0)
	}

	return &StreamError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown stream error",
	}
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"eof",
		"dial tcp",
	}

	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsCancellation reports whether err is a deliberate cancellation, which must never count as a breaker failure.
func IsCancellation(err error) bool {
	se := ClassifyStreamError(err)
	return se != nil && se.Type == ErrorTypeCancellation
}

// IsCircuitOpen reports whether err is a circuit breaker rejection.
func IsCircuitOpen(err error) bool {
	return err != nil && errors.Is(err, ErrCircuitOpen)
}

// IsHeartbeatTimeout reports whether err is a synthetic heartbeat timeout.
func IsHeartbeatTimeout(err error) bool {
	se := ClassifyStreamError(err)
	return se != nil && se.Type == ErrorTypeHeartbeatTimeout
}
