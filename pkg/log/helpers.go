package log

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// slowRequestThreshold triggers SlowRequest from RequestWithContext.
const slowRequestThreshold = time.Second

// LogHelper extends log.Helper with typed convenience methods.
// Each method adds a "type" field that EmojiConsoleEncoder maps to an emoji.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates a LogHelper writing to logger.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, typ string, kvs []interface{}) []interface{} {
	all := make([]interface{}, 0, len(kvs)+4)
	all = append(all, "msg", msg)
	all = append(all, kvs...)
	return append(all, "type", typ)
}

// Circuit logs a circuit breaker transition (🛡️).
func (h *LogHelper) Circuit(breaker, from, to, reason string, kvs ...interface{}) {
	msg := fmt.Sprintf("circuit %s: %s → %s (%s)", breaker, from, to, reason)
	all := append([]interface{}{"breaker", breaker, "from", from, "to", to, "reason", reason}, kvs...)
	if to == "open" {
		h.Warnw(withType(msg, "circuit", all)...)
		return
	}
	h.Infow(withType(msg, "circuit", all)...)
}

// Stream logs a stream lifecycle event (📡).
func (h *LogHelper) Stream(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "stream", kvs)...)
}

// Heartbeat logs liveness bookkeeping (💓).
func (h *LogHelper) Heartbeat(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "heartbeat", kvs)...)
}

// Reconnect logs a scheduled or attempted reconnect (🔁).
func (h *LogHelper) Reconnect(attempt int, delay time.Duration, kvs ...interface{}) {
	msg := fmt.Sprintf("reconnect #%d in %s", attempt, delay)
	all := append([]interface{}{"attempt", attempt, "delay", delay}, kvs...)
	h.Infow(withType(msg, "reconnect", all)...)
}

// Webhook logs a webhook delivery (🪝).
func (h *LogHelper) Webhook(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "webhook", kvs)...)
}

// Redis logs a Redis operation (📦).
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "redis", kvs)...)
}

// Scheduler logs a periodic job (🎯).
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "scheduler", kvs)...)
}

// Startup logs process startup and shutdown (🚀).
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Success logs a completed operation (✅).
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "success", kvs)...)
}

// RequestWithContext logs an HTTP request with the request id from ctx and
// flags it as slow past slowRequestThreshold.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, path string, status int, duration time.Duration, kvs ...interface{}) {
	requestID := GetRequestID(ctx)
	ms := duration.Milliseconds()
	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s", method, path, status, ms, requestID)

	all := append([]interface{}{
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", ms,
	}, kvs...)
	h.Infow(withType(msg, "request", all)...)

	if duration > slowRequestThreshold {
		h.Warnw(withType(fmt.Sprintf("[%s] slow request %s %s", requestID, method, path), "slow_request",
			[]interface{}{"request_id", requestID, "duration_ms", ms, "threshold_ms", slowRequestThreshold.Milliseconds()})...)
	}
}
