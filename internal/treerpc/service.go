// ABOUTME: gRPC service descriptor for the conversation tree, built on well-known protobuf types
// ABOUTME: Requests and events travel as structpb.Struct, so no generated stubs are needed

package treerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "coven.conversations.v1.Tree"

// Full method names.
const (
	MethodReadOnce   = "/" + ServiceName + "/ReadOnce"
	MethodWriteField = "/" + ServiceName + "/WriteField"
	MethodSetNode    = "/" + ServiceName + "/SetNode"
	MethodRemoveNode = "/" + ServiceName + "/RemoveNode"
	MethodSubscribe  = "/" + ServiceName + "/Subscribe"
)

// subIDHeader carries the server-side subscription id in the response header.
const subIDHeader = "x-subscription-id"

// TreeServer is the server API for the Tree service.
type TreeServer interface {
	ReadOnce(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WriteField(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	SetNode(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	RemoveNode(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the Tree service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TreeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReadOnce", Handler: unaryHandler(MethodReadOnce, TreeServer.ReadOnce)},
		{MethodName: "WriteField", Handler: unaryHandler(MethodWriteField, TreeServer.WriteField)},
		{MethodName: "SetNode", Handler: unaryHandler(MethodSetNode, TreeServer.SetNode)},
		{MethodName: "RemoveNode", Handler: unaryHandler(MethodRemoveNode, TreeServer.RemoveNode)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "coven/conversations/v1/tree.proto",
}

// unaryHandler adapts a TreeServer method to grpc.MethodHandler.
func unaryHandler[Resp any](fullMethod string, call func(TreeServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TreeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TreeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TreeServer).Subscribe(in, stream)
}
