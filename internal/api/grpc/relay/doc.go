// Package relay implements the gRPC transport of the alarm relay.
//
// The AlarmRelay service is described by a hand-written grpc.ServiceDesc whose
// messages are protobuf well-known types (google.protobuf.Struct and Empty),
// so no generated code is needed on either side. The package also provides a
// small client used by the send command.
package relay
