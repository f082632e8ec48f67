package log

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestContextKey contextKey = "momentum_request_context"

// RequestContext carries request tracing information through a context.
type RequestContext struct {
	RequestID string
	StartTime time.Time
}

// GenerateRequestID returns a new request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestContext stores a RequestContext for requestID in ctx.
func WithRequestContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID: requestID,
		StartTime: time.Now(),
	})
}

// GetRequestContext returns the RequestContext of ctx, or one with RequestID "unknown".
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID returns the request id of ctx.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime returns how long the request in ctx has been running.
func GetElapsedTime(ctx context.Context) time.Duration {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime)
}
