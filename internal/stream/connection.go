package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"Momentum/pkg/circuit"
	"Momentum/pkg/emitter"
	streamerrors "Momentum/pkg/errors"
	"Momentum/pkg/schedule"
	"Momentum/pkg/sse"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const readBufferSize = 4096

// Config configures a Connection.
type Config struct {
	URL        string
	Headers    map[string]string
	Supervisor SupervisorConfig
}

// Option configures a Connection.
type Option func(*Connection)

// WithHTTPClient sets the client used to open the stream.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		c.client = client
	}
}

// WithScheduler sets the clock and timer source of the connection, its supervisor and breaker.
func WithScheduler(s schedule.Scheduler) Option {
	return func(c *Connection) {
		c.sched = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Connection) {
		c.baseLogger = logger
	}
}

// WithID overrides the generated connection id.
func WithID(id string) Option {
	return func(c *Connection) {
		c.id = id
	}
}

// session is one open HTTP response being read.
type session struct {
	cancel  context.CancelCauseFunc
	decoder *sse.Decoder
}

// Connection is a supervised server-push stream.
//
// Connection emits open, message, error, close and heartbeat events, and
// re-emits the breaker notifications of its supervisor as circuit_open,
// circuit_half_open, circuit_closed and request_rejected.
type Connection struct {
	mu sync.Mutex

	id      string
	url     string
	headers map[string]string
	client  *http.Client
	sched   schedule.Scheduler

	connected bool
	closed    bool
	current   *session
	lastType  string
	wg        sync.WaitGroup

	supervisor *Supervisor
	events     *emitter.Emitter[Event]
	signals    *emitter.Emitter[Signal]
	baseLogger log.Logger
	logger     *log.Helper
}

// NewConnection creates a connection and its supervisor. Nothing is opened until Connect.
func NewConnection(cfg Config, opts ...Option) *Connection {
	c := &Connection{
		url:     cfg.URL,
		headers: cfg.Headers,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.sched == nil {
		c.sched = schedule.Default()
	}
	if c.baseLogger == nil {
		c.baseLogger = log.DefaultLogger
	}
	c.logger = log.NewHelper(log.With(c.baseLogger, "module", "stream/connection", "stream", c.id))
	c.events = emitter.New[Event](c.baseLogger)
	c.signals = emitter.New[Signal](c.baseLogger)

	c.supervisor = NewSupervisor(c.id, c, cfg.Supervisor, c.sched, c.baseLogger)
	for _, name := range []string{EventCircuitOpen, EventCircuitHalfOpen, EventCircuitClosed, EventRequestRejected} {
		c.supervisor.On(name, func(e Event) { c.events.Emit(e.Name, e) })
	}
	return c
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// URL returns the stream URL.
func (c *Connection) URL() string {
	return c.url
}

// Supervisor returns the supervisor of the connection.
func (c *Connection) Supervisor() *Supervisor {
	return c.supervisor
}

// On subscribes h to a public event.
func (c *Connection) On(event string, h func(Event)) func() {
	return c.events.On(event, h)
}

// Signals implements Conn.
func (c *Connection) Signals() *emitter.Emitter[Signal] {
	return c.signals
}

// Connected reports whether a stream response is being read.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the stream through the circuit breaker and starts supervision.
// A failed first attempt is returned; reconnects continue in the background.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()

	c.supervisor.Start(ctx)
	return c.supervisor.Connect(ctx)
}

// Open implements Conn. ctx bounds the request until response headers arrive;
// the body is read until the stream ends or the connection is closed.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return streamerrors.NewCancellationError(streamerrors.ErrClosed)
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	streamCtx, cancel := context.WithCancelCause(context.Background())
	stop := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.url, nil)
	if err != nil {
		stop()
		cancel(err)
		return c.openFailed(streamerrors.NewConnectionError(err, 0))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := c.sched.Now()
	resp, err := c.client.Do(req)
	stop()
	if err != nil {
		if streamCtx.Err() != nil {
			cause := context.Cause(streamCtx)
			cancel(nil)
			return streamerrors.NewCancellationError(cause)
		}
		cancel(err)
		return c.openFailed(streamerrors.NewConnectionError(err, 0))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()
		cancel(nil)
		return c.openFailed(streamerrors.NewConnectionError(fmt.Errorf("unexpected status %s", resp.Status), resp.StatusCode))
	}

	sess := &session{cancel: cancel}
	sess.decoder = sse.NewDecoder(c.dispatch, c.baseLogger)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = resp.Body.Close()
		cancel(streamerrors.ErrClosed)
		return streamerrors.NewCancellationError(streamerrors.ErrClosed)
	}
	c.connected = true
	c.current = sess
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Infow("msg", "stream opened", "url", c.url, "latency", c.sched.Now().Sub(start).String())
	c.events.Emit(EventOpen, Event{Name: EventOpen, At: c.sched.Now()})
	c.signals.Emit(SignalOpened, Signal{})

	go c.readLoop(streamCtx, sess, resp.Body)
	return nil
}

func (c *Connection) openFailed(err error) error {
	c.logger.Warnw("msg", "stream open failed", "url", c.url, "error", err)
	c.events.Emit(EventError, Event{Name: EventError, At: c.sched.Now(), Err: err})
	return err
}

func (c *Connection) readLoop(ctx context.Context, sess *session, body io.ReadCloser) {
	defer c.wg.Done()
	defer body.Close()

	buf := make([]byte, readBufferSize)
	var readErr error
	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.signals.Emit(SignalMessage, Signal{})
			_, _ = sess.decoder.Write(buf[:n])
		}
		if err != nil {
			readErr = err
			break
		}
	}

	c.mu.Lock()
	if c.current == sess {
		c.current = nil
		c.connected = false
	}
	c.lastType = sess.decoder.EventType()
	c.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		cause := context.Cause(ctx)
		c.logger.Infow("msg", "stream cancelled", "cause", cause)
		c.signals.Emit(SignalClosed, Signal{Err: cause})
	case errors.Is(readErr, io.EOF):
		sess.cancel(nil)
		c.logger.Infow("msg", "stream ended by server")
		c.signals.Emit(SignalClosed, Signal{})
	default:
		sess.cancel(readErr)
		err := streamerrors.NewConnectionError(readErr, 0)
		c.logger.Warnw("msg", "stream read failed", "error", err)
		c.events.Emit(EventError, Event{Name: EventError, At: c.sched.Now(), Err: err})
		c.signals.Emit(SignalErrored, Signal{Err: err})
		c.signals.Emit(SignalClosed, Signal{Err: err})
	}
}

func (c *Connection) dispatch(rec sse.Record) {
	now := c.sched.Now()
	switch rec.Kind {
	case sse.KindHeartbeat:
		c.events.Emit(EventHeartbeat, Event{Name: EventHeartbeat, At: now})
	case sse.KindMessage:
		c.events.Emit(EventMessage, Event{Name: EventMessage, At: now, Data: rec.Data, Raw: rec.Raw})
	}
}

// Disconnect implements Conn by cancelling the in-flight read with cause.
func (c *Connection) Disconnect(cause error) {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.connected = false
	c.mu.Unlock()

	if sess != nil {
		sess.cancel(cause)
	}
}

// Close stops reading, cancels any pending reconnect and emits close.
// The connection may be reopened with Connect.
func (c *Connection) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect(streamerrors.ErrClosed)
	c.supervisor.CancelReconnect()
	c.events.Emit(EventClose, Event{Name: EventClose, At: c.sched.Now()})
}

// Destroy closes the connection, stops every timer it owns and waits for the reader to exit.
func (c *Connection) Destroy() {
	c.Close()
	c.supervisor.Stop()
	c.wg.Wait()
}

// EventType returns the label of the most recent event line. It does not affect dispatch.
func (c *Connection) EventType() string {
	c.mu.Lock()
	sess := c.current
	last := c.lastType
	c.mu.Unlock()
	if sess != nil {
		return sess.decoder.EventType()
	}
	return last
}

// CircuitState returns the breaker snapshot.
func (c *Connection) CircuitState() circuit.Snapshot {
	return c.supervisor.Breaker().Snapshot()
}

// CircuitMetrics returns the breaker metrics.
func (c *Connection) CircuitMetrics() circuit.Metrics {
	return c.supervisor.Breaker().Metrics()
}

// ResetCircuit forces the breaker closed.
func (c *Connection) ResetCircuit() {
	c.supervisor.Breaker().Reset()
}

// ReconnectAttempts returns the reconnects scheduled since the stream last opened.
func (c *Connection) ReconnectAttempts() int {
	return c.supervisor.ReconnectAttempts()
}

// LastMessageTime returns when traffic was last received.
func (c *Connection) LastMessageTime() time.Time {
	return c.supervisor.LastMessageTime()
}
