package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"Momentum/pkg/circuit"
	"Momentum/pkg/emitter"
	streamerrors "Momentum/pkg/errors"
	mlog "Momentum/pkg/log"
	"Momentum/pkg/schedule"

	"github.com/go-kratos/kratos/v2/log"
)

// SupervisorConfig configures heartbeat detection and reconnection backoff.
type SupervisorConfig struct {
	Circuit           circuit.Config
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// DefaultSupervisorConfig returns the default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Circuit:           circuit.DefaultConfig(),
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
	}
}

func (c SupervisorConfig) normalize() SupervisorConfig {
	def := DefaultSupervisorConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(def.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.HeartbeatTimeout < 0 {
		c.HeartbeatTimeout = 0
	}
	return c
}

// Supervisor drives a Conn through a circuit breaker.
// It is the only component that schedules reconnects: on every close that the
// owner did not request it waits for the breaker to allow an attempt, backs off
// exponentially and reopens the connection, forever.
type Supervisor struct {
	mu sync.Mutex

	cfg     SupervisorConfig
	conn    Conn
	breaker *circuit.Breaker
	sched   schedule.Scheduler
	events  *emitter.Emitter[Event]
	logger  *mlog.LogHelper

	ctx         context.Context
	started     bool
	stopped     bool
	attempts    int
	lastMessage time.Time
	heartbeat   schedule.Timer
	reconnect   schedule.Timer
	unsubscribe []func()
}

// NewSupervisor creates a supervisor for conn and the breaker guarding it.
func NewSupervisor(name string, conn Conn, cfg SupervisorConfig, sched schedule.Scheduler, logger log.Logger) *Supervisor {
	cfg = cfg.normalize()
	if sched == nil {
		sched = schedule.Default()
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Supervisor{
		cfg:     cfg,
		conn:    conn,
		breaker: circuit.New(name, cfg.Circuit, circuit.WithScheduler(sched), circuit.WithLogger(logger)),
		sched:   sched,
		events:  emitter.New[Event](logger),
		logger:  mlog.NewLogHelper(log.With(logger, "module", "stream/supervisor", "stream", name)),
		ctx:     context.Background(),
	}
}

// Breaker returns the breaker guarding the connection.
func (s *Supervisor) Breaker() *circuit.Breaker {
	return s.breaker
}

// Config returns the effective configuration.
func (s *Supervisor) Config() SupervisorConfig {
	return s.cfg
}

// On subscribes h to a supervisor event.
func (s *Supervisor) On(event string, h func(Event)) func() {
	return s.events.On(event, h)
}

// Start subscribes to the connection signals and the breaker notifications and starts the heartbeat monitor.
// ctx is used for reconnect attempts. Calling Start more than once has no effect.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	if ctx != nil {
		s.ctx = context.WithoutCancel(ctx)
	}

	signals := s.conn.Signals()
	s.unsubscribe = append(s.unsubscribe,
		signals.On(SignalOpened, s.onOpened),
		signals.On(SignalClosed, s.onClosed),
		signals.On(SignalErrored, s.onErrored),
		signals.On(SignalMessage, s.onMessage),
		s.forward(circuit.EventOpen, EventCircuitOpen),
		s.forward(circuit.EventHalfOpen, EventCircuitHalfOpen),
		s.forward(circuit.EventClosed, EventCircuitClosed),
		s.forward(circuit.EventRejected, EventRequestRejected),
	)

	if s.cfg.HeartbeatInterval > 0 {
		s.heartbeat = s.sched.Every(s.cfg.HeartbeatInterval, s.checkHeartbeat)
	}
}

func (s *Supervisor) forward(from, to string) func() {
	return s.breaker.On(from, func(n circuit.Notification) {
		s.events.Emit(to, Event{Name: to, At: n.At, Err: n.Err, Circuit: &n})
	})
}

// Connect opens the connection through the breaker.
// A failed or rejected attempt is returned and also schedules a reconnect.
// An already connected stream is left alone and the breaker records nothing.
func (s *Supervisor) Connect(ctx context.Context) error {
	if s.conn.Connected() {
		return nil
	}
	err := s.breaker.Execute(ctx, s.conn.Open)
	if err != nil && !streamerrors.IsCancellation(err) {
		s.logger.Warnw("msg", "stream connect failed", "error", err)
		s.scheduleReconnect()
	}
	return err
}

// Stop cancels the heartbeat monitor, any pending reconnect and the breaker monitor,
// and detaches from the connection. A stopped supervisor never reconnects again.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	s.cancelReconnectLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, off := range unsubscribe {
		off()
	}
	s.breaker.Stop()
}

// CancelReconnect drops a pending reconnect, if any.
func (s *Supervisor) CancelReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelReconnectLocked()
}

func (s *Supervisor) cancelReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

// ReconnectAttempts returns the number of reconnects scheduled since the connection last opened.
func (s *Supervisor) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastMessageTime returns when traffic was last seen.
func (s *Supervisor) LastMessageTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage
}

// ReconnectPending reports whether a reconnect is scheduled.
func (s *Supervisor) ReconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect != nil
}

func (s *Supervisor) onOpened(Signal) {
	now := s.sched.Now()
	s.mu.Lock()
	s.attempts = 0
	s.lastMessage = now
	s.mu.Unlock()

	s.events.Emit(EventConnectionOpen, Event{Name: EventConnectionOpen, At: now})
}

func (s *Supervisor) onMessage(Signal) {
	now := s.sched.Now()
	s.mu.Lock()
	s.lastMessage = now
	s.mu.Unlock()
}

func (s *Supervisor) onErrored(sig Signal) {
	s.breaker.RecordFailure(sig.Err)
	s.events.Emit(EventConnectionError, Event{Name: EventConnectionError, At: s.sched.Now(), Err: sig.Err})
}

func (s *Supervisor) onClosed(sig Signal) {
	s.events.Emit(EventConnectionClose, Event{Name: EventConnectionClose, At: s.sched.Now(), Err: sig.Err})
	if errors.Is(sig.Err, streamerrors.ErrClosed) {
		return
	}
	s.scheduleReconnect()
}

func (s *Supervisor) checkHeartbeat() {
	if !s.conn.Connected() {
		return
	}
	now := s.sched.Now()
	s.mu.Lock()
	silence := now.Sub(s.lastMessage)
	if silence <= s.cfg.HeartbeatInterval+s.cfg.HeartbeatTimeout {
		s.mu.Unlock()
		return
	}
	// the monitor fires once per silent period
	s.lastMessage = now
	s.mu.Unlock()

	err := streamerrors.NewHeartbeatTimeoutError(silence)
	s.logger.Warnw("msg", "heartbeat timeout, dropping connection", "silence", silence.String())
	s.breaker.RecordFailure(err)
	s.conn.Disconnect(err)
}

// scheduleReconnect arranges the next reconnect attempt unless one is already pending.
// While the breaker refuses attempts it only rechecks after ResetTimeout.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.reconnect != nil {
		return
	}

	snap := s.breaker.Snapshot()
	if !snap.CanAttempt {
		wait := s.breaker.Config().ResetTimeout
		s.logger.Debugw("msg", "circuit open, waiting before reconnect", "wait", wait.String())
		s.reconnect = s.sched.AfterFunc(wait, s.recheck)
		return
	}

	delay := s.backoffLocked()
	s.attempts++
	s.logger.Reconnect(s.attempts, delay)
	s.reconnect = s.sched.AfterFunc(delay, s.attemptReconnect)
}

// backoffLocked returns min(ReconnectDelay * 2^attempts, MaxReconnectDelay).
func (s *Supervisor) backoffLocked() time.Duration {
	delay := s.cfg.ReconnectDelay
	for i := 0; i < s.attempts && delay < s.cfg.MaxReconnectDelay; i++ {
		delay *= 2
	}
	return min(delay, s.cfg.MaxReconnectDelay)
}

func (s *Supervisor) recheck() {
	s.mu.Lock()
	s.reconnect = nil
	s.mu.Unlock()
	s.scheduleReconnect()
}

func (s *Supervisor) attemptReconnect() {
	s.mu.Lock()
	s.reconnect = nil
	stopped := s.stopped
	ctx := s.ctx
	s.mu.Unlock()
	if stopped || s.conn.Connected() {
		return
	}

	err := s.breaker.Execute(ctx, s.conn.Open)
	switch {
	case err == nil:
		s.logger.Infow("msg", "stream reconnected")
	case streamerrors.IsCancellation(err):
		s.logger.Debugw("msg", "reconnect abandoned", "error", err)
	case streamerrors.IsCircuitOpen(err):
		s.logger.Debugw("msg", "reconnect rejected by open circuit")
		s.scheduleReconnect()
	default:
		s.logger.Warnw("msg", "reconnect failed", "error", err)
		s.scheduleReconnect()
	}
}
