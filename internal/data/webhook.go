package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"Momentum/internal/conf"
	"Momentum/internal/model"
	mlog "Momentum/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	maxConcurrentWebhooks = 4
)

// NoopWebhookService only logs circuit notifications. It is used when webhooks are disabled.
type NoopWebhookService struct {
	logger *mlog.LogHelper
}

// NewNoopWebhookService creates a new noop webhook service.
func NewNoopWebhookService(logger log.Logger) *NoopWebhookService {
	return &NoopWebhookService{
		logger: mlog.NewLogHelper(log.With(logger, "module", "data/webhook")),
	}
}

// NotifyCircuitOpened logs the event.
func (s *NoopWebhookService) NotifyCircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) error {
	s.logger.Webhook("circuit opened (webhook disabled)",
		"stream_id", event.StreamID,
		"failures", event.Failures,
		"next_attempt", event.NextAttempt)
	return nil
}

// NotifyCircuitRecovered logs the event.
func (s *NoopWebhookService) NotifyCircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) error {
	s.logger.Webhook("circuit recovered (webhook disabled)",
		"stream_id", event.StreamID,
		"downtime", event.Downtime)
	return nil
}

// HTTPWebhookService POSTs circuit notifications as JSON to every configured URL.
type HTTPWebhookService struct {
	client *http.Client
	urls   []string
	logger *mlog.LogHelper
}

// NewHTTPWebhookService creates a webhook service from configuration.
func NewHTTPWebhookService(c *conf.Webhook, logger log.Logger) *HTTPWebhookService {
	timeout := defaultWebhookTimeout
	var urls []string
	if c != nil {
		if c.Timeout > 0 {
			timeout = c.Timeout
		}
		urls = append(urls, c.URLs...)
	}
	return &HTTPWebhookService{
		client: &http.Client{Timeout: timeout},
		urls:   urls,
		logger: mlog.NewLogHelper(log.With(logger, "module", "data/webhook")),
	}
}

// NotifyCircuitOpened delivers a CIRCUIT_OPENED notification.
func (s *HTTPWebhookService) NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error {
	return s.deliver(ctx, &model.Notification{
		Event:     model.NotifyCircuitOpened,
		Timestamp: event.OpenedAt,
		Data:      event,
	})
}

// NotifyCircuitRecovered delivers a CIRCUIT_RECOVERED notification.
func (s *HTTPWebhookService) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	return s.deliver(ctx, &model.Notification{
		Event:     model.NotifyCircuitRecovered,
		Timestamp: event.RecoveredAt,
		Data:      event,
	})
}

// deliver sends n to all URLs. A failing receiver does not stop delivery to the others;
// all failures are joined into the returned error.
func (s *HTTPWebhookService) deliver(ctx context.Context, n *model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(maxConcurrentWebhooks)

	for _, url := range s.urls {
		g.Go(func() error {
			if err := s.post(ctx, url, body); err != nil {
				s.logger.Warnw("msg", "webhook delivery failed",
					"event", n.Event,
					"url", url,
					"error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			s.logger.Webhook("webhook delivered", "event", n.Event, "url", url)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *HTTPWebhookService) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "momentum-webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
