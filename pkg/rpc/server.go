package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
)

// Backend answers predictor requests. A Backend that also has a
// Ready() error method is asked before every call and answers Unavailable
// until it reports ready.
type Backend interface {
	Evaluate(duration, cumulativeTime float64) (interp.Prediction, error)
	Plan(ctx context.Context, o dosing.Overrides) (dosing.Result, error)
}

type readier interface {
	Ready() error
}

// Recorder receives one observation per call. Implementations must be safe
// for concurrent use.
type Recorder interface {
	RecordRPC(method, code string, seconds float64)
}

// Server implements PredictorServer on top of a Backend.
type Server struct {
	backend Backend
	logger  *slog.Logger
	rec     Recorder
}

var _ PredictorServer = (*Server)(nil)

// NewServer returns a Server. A nil logger falls back to slog.Default and a
// nil recorder disables call metrics.
func NewServer(b Backend, logger *slog.Logger, rec Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{backend: b, logger: logger, rec: rec}
}

// Evaluate predicts the measurement at one point.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (resp *structpb.Struct, err error) {
	defer s.observe("Evaluate", time.Now(), &err)

	if err := s.ready(); err != nil {
		return nil, err
	}
	d, c, err := decodeEvaluateRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	p, err := s.backend.Evaluate(d, c)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Debug("Evaluate called",
		"duration", d,
		"cumulativeTime", c,
		"value", p.Value,
		"inDomain", p.InDomain,
	)
	return encodePrediction(p), nil
}

// Plan runs the dosing controller with the request's overrides.
func (s *Server) Plan(ctx context.Context, req *structpb.Struct) (resp *structpb.Struct, err error) {
	defer s.observe("Plan", time.Now(), &err)

	if err := s.ready(); err != nil {
		return nil, err
	}
	o, err := decodeOverrides(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.backend.Plan(ctx, o)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Debug("Plan called",
		"steps", len(res.Trajectory),
		"reason", res.Reason,
		"stalls", res.Stalls,
	)
	return encodeResult(res), nil
}

func (s *Server) ready() error {
	if r, ok := s.backend.(readier); ok {
		if err := r.Ready(); err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
	}
	return nil
}

func (s *Server) observe(method string, start time.Time, err *error) {
	code := status.Code(*err)
	if code != codes.OK {
		s.logger.Warn("rpc failed", "method", method, "code", code.String(), "error", *err)
	}
	if s.rec != nil {
		s.rec.RecordRPC(method, code.String(), time.Since(start).Seconds())
	}
}

// toStatus maps backend errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, interp.ErrInvalidQuery), errors.Is(err, dosing.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
