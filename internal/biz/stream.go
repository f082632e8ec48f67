package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Momentum/internal/conf"
	"Momentum/internal/data"
	"Momentum/internal/model"
	"Momentum/internal/stream"
	"Momentum/pkg/circuit"
	streamerrors "Momentum/pkg/errors"
	"Momentum/pkg/httpclient"
	mlog "Momentum/pkg/log"
	"Momentum/pkg/schedule"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// notifyTimeout bounds webhook and Redis calls made from stream events.
const notifyTimeout = 10 * time.Second

var (
	// ErrStreamNotStarted is returned by operations that need a running stream.
	ErrStreamNotStarted = kerrors.Conflict("STREAM_NOT_STARTED", "stream has not been started")
	// ErrStreamStopped is returned when starting a stream that was already stopped.
	ErrStreamStopped = kerrors.Conflict("STREAM_STOPPED", "stream has been stopped")
)

// StreamUsecase owns the supervised stream and fans its events out to
// metrics, logs, webhooks and the status sink.
type StreamUsecase struct {
	conn        *stream.Connection
	name        string
	autoConnect bool
	interval    time.Duration

	status  StatusRepo
	webhook WebhookService
	metrics MetricsRecorder
	sched   schedule.Scheduler
	logger  *log.Helper
	lh      *mlog.LogHelper

	messages atomic.Int64
	wg       sync.WaitGroup

	mu        sync.Mutex
	ctx       context.Context
	started   bool
	stopped   bool
	openedAt  time.Time
	lastErr   error
	publisher schedule.Timer
	unsubs    []func()
}

// NewStreamUsecase builds the stream connection from configuration.
func NewStreamUsecase(
	sc *conf.Stream,
	cc *conf.Circuit,
	dc *conf.Data,
	status StatusRepo,
	webhook WebhookService,
	metrics MetricsRecorder,
	sched schedule.Scheduler,
	logger log.Logger,
) (*StreamUsecase, error) {
	if sc == nil || sc.URL == "" {
		return nil, errors.New("stream url is required")
	}

	client, err := httpclient.New(sc.ProxyURL, sc.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("build stream http client: %w", err)
	}

	name := sc.Name
	if name == "" {
		name = "default"
	}

	breakerCfg := circuit.DefaultConfig()
	if cc != nil {
		breakerCfg = circuit.Config{
			FailureThreshold: cc.FailureThreshold,
			ResetTimeout:     cc.ResetTimeout,
			MonitoringPeriod: cc.MonitoringPeriod,
			HalfOpenRequests: cc.HalfOpenRequests,
		}
	}

	conn := stream.NewConnection(stream.Config{
		URL:     sc.URL,
		Headers: sc.Headers,
		Supervisor: stream.SupervisorConfig{
			Circuit:           breakerCfg,
			ReconnectDelay:    sc.ReconnectDelay,
			MaxReconnectDelay: sc.MaxReconnectDelay,
			HeartbeatInterval: sc.HeartbeatInterval,
			HeartbeatTimeout:  sc.HeartbeatTimeout,
		},
	},
		stream.WithID(name),
		stream.WithHTTPClient(client),
		stream.WithScheduler(sched),
		stream.WithLogger(logger),
	)

	var interval time.Duration
	if dc != nil && dc.Redis != nil {
		interval = dc.Redis.PublishInterval
	}

	moduleLogger := log.With(logger, "module", "biz/stream", "stream", name)
	return &StreamUsecase{
		conn:        conn,
		name:        name,
		autoConnect: sc.AutoConnect,
		interval:    interval,
		status:      status,
		webhook:     webhook,
		metrics:     metrics,
		sched:       sched,
		logger:      log.NewHelper(moduleLogger),
		lh:          mlog.NewLogHelper(moduleLogger),
	}, nil
}

// Name returns the stream name.
func (uc *StreamUsecase) Name() string {
	return uc.name
}

// Connection returns the underlying stream connection.
func (uc *StreamUsecase) Connection() *stream.Connection {
	return uc.conn
}

// Start subscribes to stream events, starts status publishing and, when auto
// connect is on, opens the stream. A failed first attempt is not returned:
// the supervisor keeps reconnecting in the background.
func (uc *StreamUsecase) Start(ctx context.Context) error {
	uc.mu.Lock()
	if uc.stopped {
		uc.mu.Unlock()
		return ErrStreamStopped
	}
	if uc.started {
		uc.mu.Unlock()
		return nil
	}
	uc.started = true
	uc.ctx = context.WithoutCancel(ctx)
	uc.subscribeLocked()
	if uc.interval > 0 {
		uc.publisher = uc.sched.Every(uc.interval, uc.publishTick)
	}
	uc.mu.Unlock()

	uc.lh.Startup("stream supervision started",
		"url", uc.conn.URL(),
		"auto_connect", uc.autoConnect,
		"publish_interval", uc.interval)

	if !uc.autoConnect {
		return nil
	}
	if err := uc.conn.Connect(ctx); err != nil && !streamerrors.IsCancellation(err) {
		uc.logger.Warnw("msg", "initial connect failed, retrying in background", "error", err)
	}
	return nil
}

// Stop closes the stream, stops every timer and removes the published status.
// A stopped usecase cannot be started again.
func (uc *StreamUsecase) Stop(ctx context.Context) error {
	uc.mu.Lock()
	if uc.stopped {
		uc.mu.Unlock()
		return nil
	}
	uc.stopped = true
	wasStarted := uc.started
	uc.started = false
	if uc.publisher != nil {
		uc.publisher.Stop()
		uc.publisher = nil
	}
	uc.mu.Unlock()

	uc.conn.Destroy()

	uc.mu.Lock()
	unsubs := uc.unsubs
	uc.unsubs = nil
	uc.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	uc.wg.Wait()

	uc.metrics.Connected(uc.name, false)
	if wasStarted {
		if err := uc.status.Delete(ctx, uc.name); err != nil && !errors.Is(err, data.ErrRedisUnavailable) {
			uc.logger.Warnw("msg", "failed to remove published status", "error", err)
		}
	}
	uc.lh.Startup("stream supervision stopped", "messages", uc.messages.Load())
	return nil
}

// Status returns the current status view of the stream.
func (uc *StreamUsecase) Status() *model.StreamStatus {
	snap := uc.conn.CircuitState()
	m := uc.conn.CircuitMetrics()
	return &model.StreamStatus{
		StreamID:          uc.name,
		URL:               uc.conn.URL(),
		Connected:         uc.conn.Connected(),
		CircuitState:      snap.State.String(),
		Failures:          snap.Failures,
		NextAttempt:       snap.NextAttemptTime,
		ReconnectAttempts: uc.conn.ReconnectAttempts(),
		LastMessageAt:     uc.conn.LastMessageTime(),
		EventType:         uc.conn.EventType(),
		TotalRequests:     m.TotalRequests,
		FailedRequests:    m.FailedRequests,
		RejectedRequests:  m.RejectedRequests,
		SuccessRate:       m.SuccessRate,
		FailureThreshold:  m.FailureThreshold,
		MessagesReceived:  uc.messages.Load(),
		UpdatedAt:         uc.sched.Now(),
	}
}

// CircuitMetrics returns the breaker metrics of the stream.
func (uc *StreamUsecase) CircuitMetrics() circuit.Metrics {
	return uc.conn.CircuitMetrics()
}

// PublishStatus writes the current status to the status sink.
func (uc *StreamUsecase) PublishStatus(ctx context.Context) error {
	status := uc.Status()
	uc.metrics.ReconnectAttempts(uc.name, status.ReconnectAttempts)
	return uc.status.Publish(ctx, status)
}

// PublishedStatus returns the status last written to the status sink.
func (uc *StreamUsecase) PublishedStatus(ctx context.Context) (*model.StreamStatus, error) {
	return uc.status.Get(ctx, uc.name)
}

// Reset forces the breaker closed. A started but disconnected stream is reconnected immediately.
func (uc *StreamUsecase) Reset(ctx context.Context) error {
	uc.conn.ResetCircuit()

	uc.mu.Lock()
	started := uc.started
	uc.mu.Unlock()
	if !started || uc.conn.Connected() {
		return nil
	}

	uc.conn.Supervisor().CancelReconnect()
	return uc.conn.Connect(ctx)
}

// Reconnect drops the current stream and opens a new one through the breaker.
func (uc *StreamUsecase) Reconnect(ctx context.Context) error {
	uc.mu.Lock()
	started := uc.started
	uc.mu.Unlock()
	if !started {
		return ErrStreamNotStarted
	}

	uc.lh.Stream("manual reconnect requested")
	uc.conn.Close()
	return uc.conn.Connect(ctx)
}

func (uc *StreamUsecase) subscribeLocked() {
	sup := uc.conn.Supervisor()
	uc.unsubs = append(uc.unsubs,
		uc.conn.On(stream.EventOpen, uc.onOpen),
		uc.conn.On(stream.EventMessage, uc.onMessage),
		uc.conn.On(stream.EventHeartbeat, uc.onHeartbeat),
		uc.conn.On(stream.EventError, uc.onError),
		uc.conn.On(stream.EventCircuitOpen, uc.onCircuit),
		uc.conn.On(stream.EventCircuitHalfOpen, uc.onCircuit),
		uc.conn.On(stream.EventCircuitClosed, uc.onCircuit),
		uc.conn.On(stream.EventRequestRejected, uc.onRejected),
		sup.On(stream.EventConnectionClose, uc.onConnectionClose),
		sup.Breaker().On(circuit.EventSuccess, func(n circuit.Notification) {
			uc.metrics.ConnectDuration(uc.name, n.Duration)
		}),
	)
}

func (uc *StreamUsecase) onOpen(stream.Event) {
	uc.metrics.Connected(uc.name, true)
	uc.metrics.ReconnectAttempts(uc.name, 0)
	uc.lh.Success("stream connected", "url", uc.conn.URL())
}

func (uc *StreamUsecase) onConnectionClose(e stream.Event) {
	// a manual reconnect may already have opened the next stream
	uc.metrics.Connected(uc.name, uc.conn.Connected())
	switch {
	case e.Err == nil || errors.Is(e.Err, streamerrors.ErrClosed):
		uc.lh.Stream("stream closed")
	case streamerrors.IsHeartbeatTimeout(e.Err):
		// the supervisor records this failure itself, no error event is emitted for it
		uc.lh.Stream("stream dropped after heartbeat timeout", "cause", e.Err)
		uc.recordError(e.Err)
	default:
		uc.lh.Stream("stream dropped", "cause", e.Err)
	}
}

func (uc *StreamUsecase) onMessage(stream.Event) {
	uc.messages.Add(1)
	uc.metrics.Message(uc.name)
}

func (uc *StreamUsecase) onHeartbeat(stream.Event) {
	uc.metrics.Heartbeat(uc.name)
	uc.lh.Heartbeat("heartbeat received")
}

func (uc *StreamUsecase) onError(e stream.Event) {
	uc.recordError(e.Err)
}

func (uc *StreamUsecase) recordError(err error) {
	kind := streamerrors.ErrorTypeUnknown.String()
	if se := streamerrors.ClassifyStreamError(err); se != nil {
		kind = se.Type.String()
	}
	uc.metrics.Error(uc.name, kind)

	uc.mu.Lock()
	uc.lastErr = err
	uc.mu.Unlock()
}

func (uc *StreamUsecase) onRejected(e stream.Event) {
	uc.metrics.Rejected(uc.name)
	uc.logger.Debugw("msg", "connect attempt rejected by open circuit", "next_attempt", e.Circuit.NextAttempt)
}

func (uc *StreamUsecase) onCircuit(e stream.Event) {
	n := e.Circuit
	uc.metrics.CircuitTransition(uc.name, n.From, n.To)
	uc.lh.Circuit(uc.name, n.From.String(), n.To.String(), n.Reason, "failures", n.Failures)

	var notification *model.Notification
	switch n.To {
	case circuit.StateOpen:
		opened := uc.circuitOpened(n)
		notification = &model.Notification{Event: model.NotifyCircuitOpened, Timestamp: n.At, Data: opened}
		// reopening after a failed probe belongs to the same outage
		if n.From == circuit.StateClosed {
			uc.async(func(ctx context.Context) {
				if err := uc.webhook.NotifyCircuitOpened(ctx, opened); err != nil {
					uc.logger.Warnw("msg", "circuit opened notification failed", "error", err)
				}
			})
		}
	case circuit.StateHalfOpen:
		notification = &model.Notification{Event: model.NotifyCircuitHalfOpen, Timestamp: n.At, Data: map[string]any{
			"stream_id": uc.name,
			"reason":    n.Reason,
		}}
	case circuit.StateClosed:
		recovered := uc.circuitRecovered(n)
		if recovered == nil {
			return
		}
		notification = &model.Notification{Event: model.NotifyCircuitRecovered, Timestamp: n.At, Data: recovered}
		uc.async(func(ctx context.Context) {
			if err := uc.webhook.NotifyCircuitRecovered(ctx, recovered); err != nil {
				uc.logger.Warnw("msg", "circuit recovered notification failed", "error", err)
			}
		})
	default:
		return
	}

	uc.async(func(ctx context.Context) {
		if err := uc.status.Announce(ctx, uc.name, notification); err != nil && !errors.Is(err, data.ErrRedisUnavailable) {
			uc.logger.Warnw("msg", "failed to announce circuit transition", "error", err)
		}
		uc.publish(ctx)
	})
}

func (uc *StreamUsecase) circuitOpened(n *circuit.Notification) *model.CircuitOpenedEvent {
	uc.mu.Lock()
	if uc.openedAt.IsZero() {
		uc.openedAt = n.At
	}
	lastErr := n.Err
	if lastErr == nil {
		lastErr = uc.lastErr
	}
	uc.mu.Unlock()

	ev := &model.CircuitOpenedEvent{
		StreamID:    uc.name,
		URL:         uc.conn.URL(),
		Reason:      n.Reason,
		Failures:    n.Failures,
		OpenedAt:    n.At,
		NextAttempt: n.NextAttempt,
	}
	if lastErr != nil {
		ev.LastError = lastErr.Error()
	}
	return ev
}

// circuitRecovered returns nil when the breaker closes without a preceding outage.
func (uc *StreamUsecase) circuitRecovered(n *circuit.Notification) *model.CircuitRecoveredEvent {
	uc.mu.Lock()
	openedAt := uc.openedAt
	uc.openedAt = time.Time{}
	uc.mu.Unlock()

	if openedAt.IsZero() {
		return nil
	}
	return &model.CircuitRecoveredEvent{
		StreamID:    uc.name,
		URL:         uc.conn.URL(),
		Reason:      n.Reason,
		RecoveredAt: n.At,
		Downtime:    n.At.Sub(openedAt),
	}
}

func (uc *StreamUsecase) publishTick() {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	uc.publish(ctx)
}

func (uc *StreamUsecase) publish(ctx context.Context) {
	err := uc.PublishStatus(ctx)
	switch {
	case err == nil:
		uc.lh.Redis("status published")
	case errors.Is(err, data.ErrRedisUnavailable):
	default:
		uc.logger.Warnw("msg", "failed to publish status", "error", err)
	}
}

func (uc *StreamUsecase) async(fn func(ctx context.Context)) {
	uc.mu.Lock()
	base := uc.ctx
	uc.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		ctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}
