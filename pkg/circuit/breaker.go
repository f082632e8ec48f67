package circuit

import (
	"context"
	"sync"
	"time"

	streamerrors "Momentum/pkg/errors"
	"Momentum/pkg/emitter"
	"Momentum/pkg/schedule"

	"github.com/go-kratos/kratos/v2/log"
)

// Operation is a fallible call protected by the breaker.
type Operation func(ctx context.Context) error

// Fallback produces the result of a call rejected by an open circuit.
// err is the CircuitOpenError that would otherwise be returned.
type Fallback func(ctx context.Context, err error) error

// Breaker is a circuit breaker over arbitrary operations.
//
// Closed → Open after FailureThreshold consecutive failures.
// Open → HalfOpen on the first attempt at or after the next attempt time,
// or when the monitor finds it open for longer than twice ResetTimeout.
// HalfOpen → Closed after HalfOpenRequests consecutive successes, → Open on any failure.
type Breaker struct {
	mu sync.Mutex

	name      string
	cfg       Config
	threshold int // adaptive, starts at cfg.FailureThreshold

	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	stateSince      time.Time

	totalRequests      int64
	failedRequests     int64
	successfulRequests int64
	rejectedRequests   int64
	transitions        []Transition
	responseTimes      []time.Duration
	avgResponseTime    time.Duration

	sched      schedule.Scheduler
	monitor    schedule.Timer
	events     *emitter.Emitter[Notification]
	baseLogger log.Logger
	logger     *log.Helper
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithScheduler sets the clock and timer source, primarily for tests.
func WithScheduler(s schedule.Scheduler) Option {
	return func(b *Breaker) {
		b.sched = s
	}
}

// WithLogger sets the breaker logger.
func WithLogger(logger log.Logger) Option {
	return func(b *Breaker) {
		b.baseLogger = logger
	}
}

// New creates a breaker and starts its adaptive monitor when cfg.MonitoringPeriod > 0.
func New(name string, cfg Config, opts ...Option) *Breaker {
	cfg = cfg.normalize()
	b := &Breaker{
		name:      name,
		cfg:       cfg,
		threshold: cfg.FailureThreshold,
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.baseLogger == nil {
		b.baseLogger = log.DefaultLogger
	}
	if b.sched == nil {
		b.sched = schedule.Default()
	}
	b.logger = log.NewHelper(log.With(b.baseLogger, "breaker", name))
	b.events = emitter.New[Notification](b.baseLogger)
	b.stateSince = b.sched.Now()

	if cfg.MonitoringPeriod > 0 {
		b.monitor = b.sched.Every(cfg.MonitoringPeriod, b.checkHealth)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Config returns the configuration the breaker was created with.
func (b *Breaker) Config() Config {
	return b.cfg
}

// On subscribes h to a breaker event and returns the unsubscribe function.
func (b *Breaker) On(event string, h func(Notification)) func() {
	return b.events.On(event, h)
}

// Execute runs op under protection.
// While the circuit is open and cooling down op is not invoked and a CircuitOpenError is returned.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	return b.execute(ctx, op, nil)
}

// ExecuteWithFallback is Execute returning fallback's result instead of a CircuitOpenError.
// The fallback is not used when op itself fails.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, op Operation, fallback Fallback) error {
	return b.execute(ctx, op, fallback)
}

// Do runs op through b and returns its value. fallback may be nil.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	var result T
	var fb Fallback
	if fallback != nil {
		fb = func(ctx context.Context, rejectErr error) error {
			v, err := fallback(ctx, rejectErr)
			result = v
			return err
		}
	}
	err := b.execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			result = v
		}
		return err
	}, fb)
	return result, err
}

func (b *Breaker) execute(ctx context.Context, op Operation, fallback Fallback) error {
	notes, rejectErr := b.admit()
	b.notify(notes)
	if rejectErr != nil {
		if fallback != nil {
			return fallback(ctx, rejectErr)
		}
		return rejectErr
	}

	start := b.sched.Now()
	err := op(ctx)
	elapsed := b.sched.Now().Sub(start)

	switch {
	case err == nil:
		b.notify(b.onSuccess(elapsed))
	case streamerrors.IsCancellation(err):
		b.logger.Debugw("msg", "operation cancelled, not counted", "error", err)
	default:
		b.notify(b.onFailure(err))
	}
	return err
}

// RecordSuccess records an outcome observed outside Execute.
func (b *Breaker) RecordSuccess(d time.Duration) {
	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()
	b.notify(b.onSuccess(d))
}

// RecordFailure records a failure observed outside Execute. Cancellations are ignored.
func (b *Breaker) RecordFailure(err error) {
	if streamerrors.IsCancellation(err) {
		return
	}
	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()
	b.notify(b.onFailure(err))
}

// admit decides whether a call may proceed, moving Open → HalfOpen once the cooldown has elapsed.
func (b *Breaker) admit() ([]Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	if b.state != StateOpen {
		return nil, nil
	}

	now := b.sched.Now()
	if now.Before(b.nextAttemptTime) {
		b.rejectedRequests++
		n := Notification{
			Event:       EventRejected,
			From:        StateOpen,
			To:          StateOpen,
			At:          now,
			Failures:    b.failures,
			NextAttempt: b.nextAttemptTime,
		}
		return []Notification{n}, streamerrors.NewCircuitOpenError(b.name, b.nextAttemptTime)
	}
	return b.transitionLocked(StateHalfOpen, ReasonCooldown, now), nil
}

func (b *Breaker) onSuccess(d time.Duration) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.sched.Now()
	b.successfulRequests++
	b.responseTimes = append(b.responseTimes, d)
	b.trimResponseTimesLocked()
	b.avgResponseTime = averageOf(b.responseTimes, averageWindow)

	notes := []Notification{{Event: EventSuccess, From: b.state, To: b.state, At: now, Duration: d}}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenRequests {
			notes = append(notes, b.transitionLocked(StateClosed, ReasonProbeOK, now)...)
		}
	}
	return notes
}

func (b *Breaker) onFailure(err error) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.sched.Now()
	b.failedRequests++
	b.lastFailureTime = now
	b.failures++

	notes := []Notification{{Event: EventFailure, From: b.state, To: b.state, At: now, Failures: b.failures, Err: err}}

	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			notes = append(notes, b.transitionLocked(StateOpen, ReasonThreshold, now)...)
		}
	case StateHalfOpen:
		notes = append(notes, b.transitionLocked(StateOpen, ReasonProbeFailed, now)...)
	}
	return notes
}

// transitionLocked moves the breaker to state to and returns the notifications describing it.
func (b *Breaker) transitionLocked(to State, reason string, now time.Time) []Notification {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	b.stateSince = now
	switch to {
	case StateOpen:
		b.successes = 0
		b.nextAttemptTime = now.Add(b.cfg.ResetTimeout)
	case StateHalfOpen, StateClosed:
		b.failures = 0
		b.successes = 0
		b.nextAttemptTime = time.Time{}
	}
	b.transitions = append(b.transitions, Transition{From: from, To: to, At: now, Reason: reason})

	b.logger.Infow("msg", "circuit state changed",
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
		"failures", b.failures)

	base := Notification{
		From:        from,
		To:          to,
		At:          now,
		Reason:      reason,
		Failures:    b.failures,
		NextAttempt: b.nextAttemptTime,
	}
	specific, change := base, base
	specific.Event = eventFor(to)
	change.Event = EventStateChange
	return []Notification{specific, change}
}

func (b *Breaker) trimResponseTimesLocked() {
	if len(b.responseTimes) > maxResponseTimes {
		kept := make([]time.Duration, keptResponseTimes)
		copy(kept, b.responseTimes[len(b.responseTimes)-keptResponseTimes:])
		b.responseTimes = kept
	}
}

func (b *Breaker) notify(notes []Notification) {
	for _, n := range notes {
		n.Breaker = b.name
		b.events.Emit(n.Event, n)
	}
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.sched.Now()
	return Snapshot{
		State:           b.state,
		Failures:        b.failures,
		Successes:       b.successes,
		LastFailureTime: b.lastFailureTime,
		NextAttemptTime: b.nextAttemptTime,
		IsOpen:          b.state == StateOpen,
		CanAttempt:      b.state != StateOpen || !now.Before(b.nextAttemptTime),
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns counters and derived rates.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		TotalRequests:       b.totalRequests,
		FailedRequests:      b.failedRequests,
		SuccessfulRequests:  b.successfulRequests,
		RejectedRequests:    b.rejectedRequests,
		AverageResponseTime: b.avgResponseTime,
		CurrentState:        b.state,
		TimeInState:         b.sched.Now().Sub(b.stateSince),
		FailureThreshold:    b.threshold,
		StateChanges:        append([]Transition(nil), b.transitions...),
	}
	if b.totalRequests > 0 {
		m.SuccessRate = float64(b.successfulRequests) / float64(b.totalRequests) * 100
		m.FailureRate = float64(b.failedRequests) / float64(b.totalRequests) * 100
	}
	return m
}

// Reset forces the breaker closed with cleared counters, whatever its current state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	now := b.sched.Now()
	notes := b.transitionLocked(StateClosed, ReasonReset, now)
	b.failures = 0
	b.successes = 0
	b.nextAttemptTime = time.Time{}
	b.mu.Unlock()

	b.notify(notes)
}

// Stop cancels the adaptive monitor.
func (b *Breaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.monitor != nil {
		b.monitor.Stop()
		b.monitor = nil
	}
}

func eventFor(s State) string {
	switch s {
	case StateOpen:
		return EventOpen
	case StateHalfOpen:
		return EventHalfOpen
	default:
		return EventClosed
	}
}

func averageOf(samples []time.Duration, window int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}
