package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Описание сервиса без protoc: запросы — structpb.Struct, ответы — emptypb.Empty.

const (
	ServiceName          = "realtime.v1.NotificationService"
	DeliverFullMethod    = "/" + ServiceName + "/Deliver"
	RetractFullMethod    = "/" + ServiceName + "/Retract"
	notificationProtoRef = "realtime/v1/notification.proto"
)

// NotificationServiceServer принимает уведомления от внутренних продюсеров.
//
// Deliver: {"user_id": 3, "notification": {...}}
// Retract: {"user_id": 3, "notification_id": 5}
type NotificationServiceServer interface {
	Deliver(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Retract(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterNotificationServiceServer(s grpc.ServiceRegistrar, srv NotificationServiceServer) {
	s.RegisterService(&notificationServiceDesc, srv)
}

var notificationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
		{MethodName: "Retract", Handler: retractHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: notificationProtoRef,
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServiceServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DeliverFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServiceServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func retractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServiceServer).Retract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RetractFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServiceServer).Retract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
