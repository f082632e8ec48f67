package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Momentum/internal/conf"
	"Momentum/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const defaultStatusTTL = 2 * time.Minute

var (
	// ErrStatusNotFound is returned when no status has been published for a stream.
	ErrStatusNotFound = errors.New("stream status not found")
	// ErrRedisUnavailable is returned when Redis is not configured.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// StatusKey is the Redis key holding the latest status of a stream.
func StatusKey(streamID string) string {
	return fmt.Sprintf("momentum:stream:%s:status", streamID)
}

// EventsChannel is the Pub/Sub channel carrying circuit transitions of a stream.
func EventsChannel(streamID string) string {
	return fmt.Sprintf("momentum:stream:%s:events", streamID)
}

// StatusRepo publishes a read-only view of stream state to Redis.
// Nothing is ever read back to restore breaker or connection state.
type StatusRepo struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Helper
}

// NewStatusRepo creates a StatusRepo. All methods return ErrRedisUnavailable
// when Redis is not configured.
func NewStatusRepo(d *Data, c *conf.Data, logger log.Logger) *StatusRepo {
	ttl := defaultStatusTTL
	if c != nil && c.Redis != nil && c.Redis.StatusTTL > 0 {
		ttl = c.Redis.StatusTTL
	}
	return &StatusRepo{
		rdb:    d.GetRedisClient(),
		ttl:    ttl,
		logger: log.NewHelper(log.With(logger, "module", "data/status")),
	}
}

// Publish stores status under its stream key with the configured TTL.
func (r *StatusRepo) Publish(ctx context.Context, status *model.StreamStatus) error {
	if r.rdb == nil {
		return ErrRedisUnavailable
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if err := r.rdb.Set(ctx, StatusKey(status.StreamID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("publish status for %s: %w", status.StreamID, err)
	}

	r.logger.Debugw("msg", "status published",
		"stream_id", status.StreamID,
		"circuit_state", status.CircuitState,
		"connected", status.Connected)
	return nil
}

// Get returns the last published status of a stream.
func (r *StatusRepo) Get(ctx context.Context, streamID string) (*model.StreamStatus, error) {
	if r.rdb == nil {
		return nil, ErrRedisUnavailable
	}

	raw, err := r.rdb.Get(ctx, StatusKey(streamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status for %s: %w", streamID, err)
	}

	var status model.StreamStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode status for %s: %w", streamID, err)
	}
	return &status, nil
}

// Delete removes the published status of a stream.
func (r *StatusRepo) Delete(ctx context.Context, streamID string) error {
	if r.rdb == nil {
		return ErrRedisUnavailable
	}
	return r.rdb.Del(ctx, StatusKey(streamID)).Err()
}

// Announce publishes a circuit transition on the stream's events channel.
func (r *StatusRepo) Announce(ctx context.Context, streamID string, n *model.Notification) error {
	if r.rdb == nil {
		return ErrRedisUnavailable
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return r.rdb.Publish(ctx, EventsChannel(streamID), payload).Err()
}
