package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names reported to middleware.
const (
	OperationStreamGetStatus          = "/momentum.v1.Stream/GetStatus"
	OperationStreamGetPublishedStatus = "/momentum.v1.Stream/GetPublishedStatus"
	OperationStreamResetCircuit       = "/momentum.v1.Stream/ResetCircuit"
	OperationStreamReconnect          = "/momentum.v1.Stream/Reconnect"
)

// RegisterStreamServiceHTTPServer registers the stream routes on s.
func RegisterStreamServiceHTTPServer(s *http.Server, srv *StreamService) {
	r := s.Route("/")
	r.GET("/v1/stream/status", streamStatusHandler(srv.GetStatus, OperationStreamGetStatus))
	r.GET("/v1/stream/status/published", streamStatusHandler(srv.GetPublishedStatus, OperationStreamGetPublishedStatus))
	r.POST("/v1/stream/reset", streamActionHandler(srv.ResetCircuit, OperationStreamResetCircuit))
	r.POST("/v1/stream/reconnect", streamActionHandler(srv.Reconnect, OperationStreamReconnect))
}

func streamStatusHandler(fn func(context.Context, *StatusRequest) (*StatusReply, error), operation string) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in StatusRequest
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(ctx, req.(*StatusRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func streamActionHandler(fn func(context.Context, *ActionRequest) (*ActionReply, error), operation string) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in ActionRequest
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(ctx, req.(*ActionRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
