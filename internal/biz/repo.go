package biz

import (
	"context"
	"time"

	"Momentum/internal/model"
	"Momentum/pkg/circuit"
)

// StatusRepo publishes the read-only status view of a stream.
type StatusRepo interface {
	Publish(ctx context.Context, status *model.StreamStatus) error
	Get(ctx context.Context, streamID string) (*model.StreamStatus, error)
	Delete(ctx context.Context, streamID string) error
	Announce(ctx context.Context, streamID string, n *model.Notification) error
}

// MetricsRecorder receives stream and breaker measurements.
type MetricsRecorder interface {
	CircuitTransition(stream string, from, to circuit.State)
	Rejected(stream string)
	Connected(stream string, up bool)
	Message(stream string)
	Heartbeat(stream string)
	Error(stream, kind string)
	ReconnectAttempts(stream string, n int)
	ConnectDuration(stream string, d time.Duration)
}
