package data

import (
	"context"
	"time"

	"Momentum/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates the Redis client used for status publishing.
// A failed ping is logged and the client is still returned so the stream keeps
// running without a status sink.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data/redis"))

	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		helper.Warnw("msg", "redis not configured, status publishing disabled")
		return nil, func() {}, nil
	}

	network := c.Redis.Network
	if network == "" {
		network = "tcp"
	}

	rdb := redis.NewClient(&redis.Options{
		Network:         network,
		Addr:            c.Redis.Addr,
		Password:        c.Redis.Password,
		DB:              c.Redis.DB,
		PoolSize:        10,
		MinIdleConns:    1,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     c.Redis.ReadTimeout,
		WriteTimeout:    c.Redis.WriteTimeout,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	cleanup := func() {
		helper.Infow("msg", "closing redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorw("msg", "failed to close redis client", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		helper.Warnw("msg", "redis unavailable, continuing without status publishing",
			"addr", c.Redis.Addr,
			"error", err)
		return rdb, cleanup, nil
	}

	helper.Infow("msg", "connected to redis", "addr", c.Redis.Addr, "db", c.Redis.DB)
	return rdb, cleanup, nil
}
