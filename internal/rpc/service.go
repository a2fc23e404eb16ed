package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/intake"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region service-desc

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "triggerguard.v1.Pipeline"

// PipelineServer is the server side of the Pipeline service.
type PipelineServer interface {
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Feedback(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Discontinuity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PipelineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PipelineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PipelineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PipelineServiceDesc describes the Pipeline service for grpc.Server.
var PipelineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenSession", Handler: unaryHandler("OpenSession", PipelineServer.OpenSession)},
		{MethodName: "CloseSession", Handler: unaryHandler("CloseSession", PipelineServer.CloseSession)},
		{MethodName: "Ingest", Handler: unaryHandler("Ingest", PipelineServer.Ingest)},
		{MethodName: "Feedback", Handler: unaryHandler("Feedback", PipelineServer.Feedback)},
		{MethodName: "Discontinuity", Handler: unaryHandler("Discontinuity", PipelineServer.Discontinuity)},
		{MethodName: "ExportThresholds", Handler: unaryHandler("ExportThresholds", PipelineServer.ExportThresholds)},
		{MethodName: "ImportThresholds", Handler: unaryHandler("ImportThresholds", PipelineServer.ImportThresholds)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triggerguard/v1/pipeline.proto",
}

// #endregion service-desc

// #region server

// Server implements PipelineServer on top of a session manager.
type Server struct {
	manager *orchestrator.Manager
	logger  *slog.Logger
}

// NewServer creates a Server.
func NewServer(m *orchestrator.Manager, logger *slog.Logger) *Server {
	return &Server{manager: m, logger: logging.NewComponentLogger(logger, "rpc")}
}

// Register adds the Pipeline and health services to gs.
func (s *Server) Register(gs *grpc.Server) *health.Server {
	gs.RegisterService(&PipelineServiceDesc, s)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// UnaryLogger logs every call with its status code and duration.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	logger = logging.NewComponentLogger(logger, "rpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelDebug
		if code != codes.OK && code != codes.NotFound && code != codes.InvalidArgument {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "rpc",
			logging.String("method", info.FullMethod),
			logging.String("code", code.String()),
			logging.Duration("duration", time.Since(start)))
		return resp, err
	}
}

// #endregion server

// #region sessions

func (s *Server) OpenSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OpenSessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	sess := s.manager.Open(ctx, req.UserID, nil)
	return encodeResponse(OpenSessionResponse{SessionID: sess.ID(), Epoch: sess.Epoch()})
}

func (s *Server) CloseSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CloseSessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.manager.CloseSession(req.SessionID); err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(Empty{})
}

func (s *Server) session(id string) (*orchestrator.Session, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	sess, err := s.manager.Session(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return sess, nil
}

// #endregion sessions

// #region pipeline

func (s *Server) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req IngestRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := sess.Process(ctx, req.Detection)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(IngestResponse{
		Epoch:      res.Epoch,
		Action:     res.Outcome.Action,
		Reason:     res.Outcome.Reason,
		Confidence: res.Confidence,
		Threshold:  res.Outcome.EffectiveThreshold,
		Warning:    res.Warning(),
	})
}

func (s *Server) Feedback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req FeedbackRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	adj, err := sess.Feedback(ctx, req.Feedback)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(FeedbackResponse{
		Category:  adj.Category,
		Old:       adj.Old,
		New:       adj.New,
		Reasoning: adj.Reasoning,
		Converged: adj.Converged,
	})
}

func (s *Server) Discontinuity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DiscontinuityRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	var epoch uint64
	switch req.Kind {
	case orchestrator.EventSeek:
		epoch = sess.Seek(ctx, req.SeekTo)
	case orchestrator.EventMediaChange:
		epoch = sess.MediaChanged(ctx, req.MediaID)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown discontinuity kind %q", req.Kind)
	}
	return encodeResponse(DiscontinuityResponse{Epoch: epoch})
}

// #endregion pipeline

// #region thresholds

func (s *Server) ExportThresholds(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ThresholdsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return encodeResponse(ThresholdsResponse{
		UserID:     req.UserID,
		Thresholds: s.manager.ExportThresholds(ctx, req.UserID),
	})
}

// ImportThresholds applies every known category even when some are
// rejected; the rejected ones are reported as InvalidArgument.
func (s *Server) ImportThresholds(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ThresholdsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.manager.ImportThresholds(ctx, req.UserID, req.Thresholds); err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(ThresholdsResponse{
		UserID:     req.UserID,
		Thresholds: s.manager.ExportThresholds(ctx, req.UserID),
	})
}

// #endregion thresholds

// #region helpers

func decodeRequest(in *structpb.Struct, v any) error {
	if err := fromStruct(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps pipeline errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, orchestrator.ErrSessionClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, orchestrator.ErrStaleEpoch), errors.Is(err, intake.ErrStale):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, detection.ErrMalformed),
		errors.Is(err, threshold.ErrUnknownCategory),
		errors.Is(err, threshold.ErrUnknownFeedback):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion helpers
