package server

import (
	"context"

	"Momentum/internal/biz"

	"github.com/go-kratos/kratos/v2/transport"
)

var _ transport.Server = (*StreamServer)(nil)

// StreamServer runs stream supervision as part of the application lifecycle.
type StreamServer struct {
	uc *biz.StreamUsecase
}

// NewStreamServer creates a StreamServer.
func NewStreamServer(uc *biz.StreamUsecase) *StreamServer {
	return &StreamServer{uc: uc}
}

// Start starts supervision and returns without waiting for the stream to open.
func (s *StreamServer) Start(ctx context.Context) error {
	return s.uc.Start(ctx)
}

// Stop closes the stream and releases its timers.
func (s *StreamServer) Stop(ctx context.Context) error {
	return s.uc.Stop(ctx)
}
