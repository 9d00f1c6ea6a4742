package relay

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	"github.com/oshokin/alarm-relay/internal/logger"
	alarmsvc "github.com/oshokin/alarm-relay/internal/service/alarm"
)

// Service abstracts the business operations the transport depends on.
type Service interface {
	Submit(ctx context.Context, alarmType, message string, severity domain.Severity, metadata map[string]any) error
	Stats() alarmsvc.Stats
}

// Server implements AlarmRelayServer on top of a Service.
type Server struct {
	// service receives the submitted alarms.
	service Service
}

// NewServer wires the provided service into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Submit validates the request and queues the alarm.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fields := req.GetFields()

	alarmType := fields["type"].GetStringValue()
	if alarmType == "" {
		return nil, status.Error(codes.InvalidArgument, "type is required")
	}

	var metadata map[string]any
	if meta, ok := fields["metadata"]; ok && meta.GetKind() != nil {
		if meta.GetStructValue() == nil {
			if _, isNull := meta.GetKind().(*structpb.Value_NullValue); !isNull {
				return nil, status.Error(codes.InvalidArgument, "metadata must be an object")
			}
		} else {
			metadata = meta.GetStructValue().AsMap()
		}
	}

	err := s.service.Submit(
		ctx,
		alarmType,
		fields["message"].GetStringValue(),
		domain.Severity(fields["severity"].GetStringValue()),
		metadata,
	)

	switch {
	case err == nil:
		return new(emptypb.Empty), nil
	case errors.Is(err, domain.ErrEmptyType), errors.Is(err, domain.ErrInvalidMetadata):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	default:
		logger.ErrorKV(ctx, "Failed to submit alarm", "error", err)
		return nil, status.Error(codes.Internal, "unable to queue alarm")
	}
}

// Stats returns the service stats.
func (s *Server) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := statsToStruct(s.service.Stats())
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode stats")
	}

	return stats, nil
}

// statsToStruct converts stats into a protobuf Struct with the JSON field names.
func statsToStruct(stats alarmsvc.Stats) (*structpb.Struct, error) {
	var endpoint any
	if stats.Endpoint != nil {
		endpoint = *stats.Endpoint
	}

	return structpb.NewStruct(map[string]any{
		"enabled":            stats.Enabled,
		"endpoint":           endpoint,
		"running":            stats.Running,
		"queue_depth":        stats.QueueDepth,
		"total_delivered":    stats.TotalDelivered,
		"lifetime_delivered": stats.LifetimeDelivered,
		"lifetime_failed":    stats.LifetimeFailed,
	})
}
