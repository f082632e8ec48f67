package log

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedHelper() (*LogHelper, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLogHelper(NewKratosAdapter(zap.New(core))), logs
}

func TestLogHelper_Types(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *LogHelper)
		logType string
		level   zapcore.Level
	}{
		{"stream", func(h *LogHelper) { h.Stream("opened") }, "stream", zapcore.InfoLevel},
		{"heartbeat", func(h *LogHelper) { h.Heartbeat("tick") }, "heartbeat", zapcore.DebugLevel},
		{"webhook", func(h *LogHelper) { h.Webhook("delivered") }, "webhook", zapcore.InfoLevel},
		{"redis", func(h *LogHelper) { h.Redis("published") }, "redis", zapcore.DebugLevel},
		{"scheduler", func(h *LogHelper) { h.Scheduler("started") }, "scheduler", zapcore.InfoLevel},
		{"startup", func(h *LogHelper) { h.Startup("listening") }, "startup", zapcore.InfoLevel},
		{"success", func(h *LogHelper) { h.Success("done") }, "success", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, logs := newObservedHelper()
			tt.call(h)
			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.logType, entry.ContextMap()["type"])
			assert.Equal(t, tt.level, entry.Level)
		})
	}
}

func TestLogHelper_CircuitOpenIsWarning(t *testing.T) {
	h, logs := newObservedHelper()

	h.Circuit("upstream", "closed", "open", "failure_threshold", "failures", 5)
	h.Circuit("upstream", "half-open", "closed", "probe_succeeded")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "circuit upstream: closed → open (failure_threshold)", entries[0].Message)
	assert.EqualValues(t, 5, entries[0].ContextMap()["failures"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestLogHelper_Reconnect(t *testing.T) {
	h, logs := newObservedHelper()

	h.Reconnect(3, 4*time.Second)

	entry := logs.All()[0]
	assert.Equal(t, "reconnect #3 in 4s", entry.Message)
	assert.Equal(t, 4*time.Second, entry.ContextMap()["delay"])
}

func TestLogHelper_RequestWithContext(t *testing.T) {
	h, logs := newObservedHelper()
	ctx := WithRequestContext(context.Background(), "req-1")

	h.RequestWithContext(ctx, "GET", "/v1/stream/status", 200, 20*time.Millisecond)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()["request_id"])

	h.RequestWithContext(ctx, "POST", "/v1/stream/reconnect", 200, 2*time.Second)
	require.Equal(t, 3, logs.Len(), "slow requests log an extra warning")
	assert.Equal(t, "slow_request", logs.All()[2].ContextMap()["type"])
}

func TestRequestContext(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, "unknown", GetRequestID(nil)) //nolint:staticcheck
	assert.Zero(t, GetElapsedTime(context.Background()))

	ctx := WithRequestContext(context.Background(), "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))
	assert.GreaterOrEqual(t, GetElapsedTime(ctx), time.Duration(0))

	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
