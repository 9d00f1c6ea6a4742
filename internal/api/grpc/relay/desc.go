package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "alarmrelay.v1.AlarmRelay"

// Full method names.
const (
	SubmitMethod = "/" + ServiceName + "/Submit"
	StatsMethod  = "/" + ServiceName + "/Stats"
)

// AlarmRelayServer is the server API of the AlarmRelay service.
//
// Submit takes a Struct with the fields type, message, severity (optional)
// and metadata (optional object). Stats returns the service stats as a Struct.
type AlarmRelayServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterAlarmRelayServer registers srv on s.
func RegisterAlarmRelayServer(s grpc.ServiceRegistrar, srv AlarmRelayServer) {
	s.RegisterService(&serviceDesc, srv)
}

//nolint:gochecknoglobals // grpc keeps a pointer to the descriptor.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmRelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Submit",
			Handler:    submitHandler,
		},
		{
			MethodName: "Stats",
			Handler:    statsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmrelay/v1/relay.proto",
}

func submitHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is dictated by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(AlarmRelayServer).Submit(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SubmitMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlarmRelayServer).Submit(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

func statsHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature is dictated by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(AlarmRelayServer).Stats(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatsMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AlarmRelayServer).Stats(ctx, req.(*emptypb.Empty))
	}

	return interceptor(ctx, in, info, handler)
}
