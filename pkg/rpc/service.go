// Package rpc exposes the predictor over gRPC as dosimap.v1.Predictor.
//
// Requests and responses are google.protobuf.Struct messages:
//
//	Evaluate  {duration, cumulativeTime}            -> {value, inDomain}
//	Plan      {targetValue?, targetMin?, targetMax?, maxIterations?}
//	          -> {reason, stalls, trajectory: [{duration, cumulativeTime, predicted}]}
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "dosimap.v1.Predictor"

	EvaluateMethod = "/" + ServiceName + "/Evaluate"
	PlanMethod     = "/" + ServiceName + "/Plan"
)

// PredictorServer is the server API for dosimap.v1.Predictor.
type PredictorServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes dosimap.v1.Predictor for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Plan", Handler: planHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dosimap/v1/predictor.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv PredictorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func planHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Plan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PlanMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Plan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
