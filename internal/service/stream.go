package service

import (
	"context"
	"errors"
	"strings"

	"Momentum/internal/biz"
	"Momentum/internal/data"
	"Momentum/internal/model"
	"Momentum/pkg/circuit"
	streamerrors "Momentum/pkg/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// StatusRequest is the request of GetStatus and GetPublishedStatus.
type StatusRequest struct{}

// StatusReply carries the live stream status and breaker metrics.
type StatusReply struct {
	Status  *model.StreamStatus `json:"status"`
	Metrics *circuit.Metrics    `json:"metrics,omitempty"`
}

// ActionRequest is the request of ResetCircuit and Reconnect.
type ActionRequest struct{}

// ActionReply reports the stream status after an action.
type ActionReply struct {
	OK     bool                `json:"ok"`
	Error  string              `json:"error,omitempty"`
	Status *model.StreamStatus `json:"status"`
}

// StreamService implements the stream HTTP API.
type StreamService struct {
	uc     *biz.StreamUsecase
	logger *log.Helper
}

// NewStreamService creates a new StreamService instance.
func NewStreamService(uc *biz.StreamUsecase, logger log.Logger) *StreamService {
	return &StreamService{
		uc:     uc,
		logger: log.NewHelper(log.With(logger, "module", "service/stream")),
	}
}

// GetStatus returns the live status of the stream.
func (s *StreamService) GetStatus(_ context.Context, _ *StatusRequest) (*StatusReply, error) {
	metrics := s.uc.CircuitMetrics()
	return &StatusReply{
		Status:  s.uc.Status(),
		Metrics: &metrics,
	}, nil
}

// GetPublishedStatus returns the status last published to Redis.
func (s *StreamService) GetPublishedStatus(ctx context.Context, _ *StatusRequest) (*StatusReply, error) {
	status, err := s.uc.PublishedStatus(ctx)
	switch {
	case err == nil:
		return &StatusReply{Status: status}, nil
	case errors.Is(err, data.ErrStatusNotFound):
		return nil, kerrors.NotFound("STATUS_NOT_FOUND", "no status has been published for this stream")
	case errors.Is(err, data.ErrRedisUnavailable):
		return nil, kerrors.ServiceUnavailable("STATUS_SINK_UNAVAILABLE", "status publishing is not configured")
	default:
		s.logger.Errorw("msg", "failed to read published status", "error", err)
		return nil, kerrors.InternalServer("STATUS_READ_FAILED", err.Error())
	}
}

// ResetCircuit forces the breaker closed. The breaker is reset even when the
// follow-up connection attempt fails; the failure is reported in the reply.
func (s *StreamService) ResetCircuit(ctx context.Context, _ *ActionRequest) (*ActionReply, error) {
	s.logger.Infow("msg", "ResetCircuit called")

	reply := &ActionReply{OK: true}
	if err := s.uc.Reset(ctx); err != nil {
		reply.Error = err.Error()
	}
	reply.Status = s.uc.Status()
	return reply, nil
}

// Reconnect drops the current stream and opens a new one.
func (s *StreamService) Reconnect(ctx context.Context, _ *ActionRequest) (*ActionReply, error) {
	s.logger.Infow("msg", "Reconnect called")

	if err := s.uc.Reconnect(ctx); err != nil {
		return nil, toAPIError(err)
	}
	return &ActionReply{OK: true, Status: s.uc.Status()}, nil
}

// toAPIError keeps kratos errors as they are and maps stream failures to 503.
func toAPIError(err error) error {
	var kerr *kerrors.Error
	if errors.As(err, &kerr) {
		return err
	}
	se := streamerrors.ClassifyStreamError(err)
	return kerrors.ServiceUnavailable("STREAM_"+strings.ToUpper(se.Type.String()), err.Error()).WithCause(err)
}
