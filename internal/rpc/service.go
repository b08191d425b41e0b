package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// RuntimeServer is the interface a gRPC handler dispatches Compile and
// Execute calls to; Server implements it directly.
type RuntimeServer interface {
	Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error)
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
}

func compileHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(CompileRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuntimeServer).Compile(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Compile"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RuntimeServer).Compile(ctx, req.(*CompileRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ExecuteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuntimeServer).Execute(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Execute"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RuntimeServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

const serviceName = "bur.Runtime"

// serviceDesc is the hand-built grpc.ServiceDesc registered in place
// of a protoc-generated one — see internal/rpc/codec.go for the JSON
// wire codec this relies on instead of protobuf wire encoding.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/service.go",
}

// RegisterRuntimeServer registers srv's Compile/Execute methods on s.
func RegisterRuntimeServer(s grpc.ServiceRegistrar, srv RuntimeServer) {
	s.RegisterService(&serviceDesc, srv)
}
