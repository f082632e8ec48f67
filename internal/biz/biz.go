// Package biz contains the stream supervision use case.
package biz

import (
	"Momentum/internal/data"
	"Momentum/pkg/schedule"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewStreamUsecase,
	NewScheduler,
	NewWebhookService,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(StatusRepo), new(*data.StatusRepo)),
	wire.Bind(new(MetricsRecorder), new(*data.StreamMetrics)),
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
)

// NewScheduler creates the cron scheduler shared by the breaker monitor,
// the heartbeat monitor, reconnect backoff and status publishing.
func NewScheduler(logger log.Logger) (schedule.Scheduler, func()) {
	s := schedule.NewCronScheduler(log.With(logger, "module", "schedule"))
	return s, s.Shutdown
}
