// Package data provides the status, metrics and webhook sinks of the stream.
package data

import (
	"Momentum/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewStatusRepo,
	NewRegistry,
	NewStreamMetrics,
	NewHTTPWebhookService,
	NewNoopWebhookService,
)

// Data contains the shared data layer dependencies.
type Data struct {
	// redisClient is nil when Redis is not configured.
	redisClient *redis.Client
}

// NewData creates a new Data instance.
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client) (*Data, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data"))

	if rdb == nil {
		helper.Warnw("msg", "redis client is nil, stream status will not be published")
	}

	cleanup := func() {
		helper.Infow("msg", "closing the data resources")
	}

	return &Data{redisClient: rdb}, cleanup, nil
}

// GetRedisClient returns the Redis client, which may be nil.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}
