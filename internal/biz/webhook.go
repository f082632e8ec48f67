package biz

import (
	"context"

	"Momentum/internal/conf"
	"Momentum/internal/data"
	"Momentum/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// WebhookService defines the interface for circuit notifications.
type WebhookService interface {
	// NotifyCircuitOpened sends a notification when the stream breaker opens.
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error

	// NotifyCircuitRecovered sends a notification when the stream breaker closes after being open.
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error
}

// NewWebhookService selects the HTTP notifier when webhooks are enabled and the logging one otherwise.
func NewWebhookService(c *conf.Webhook, httpSvc *data.HTTPWebhookService, noop *data.NoopWebhookService, logger log.Logger) WebhookService {
	if c != nil && c.Enabled && len(c.URLs) > 0 {
		log.NewHelper(logger).Infow("msg", "webhook notifications enabled", "receivers", len(c.URLs))
		return httpSvc
	}
	return noop
}
