package grpcx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/service"
)

const mdInternalToken = "x-internal-token"

type Server struct {
	notifySvc     *service.NotificationService
	internalToken string
}

func NewServer(notifySvc *service.NotificationService, internalToken string) *Server {
	return &Server{notifySvc: notifySvc, internalToken: internalToken}
}

func Register(grpcServer *grpc.Server, s *Server) {
	RegisterNotificationServiceServer(grpcServer, s)
}

type deliverRequest struct {
	UserID       int64               `json:"user_id"`
	Notification domain.Notification `json:"notification"`
}

type retractRequest struct {
	UserID         int64 `json:"user_id"`
	NotificationID int64 `json:"notification_id"`
}

func (s *Server) Deliver(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.checkInternal(ctx); err != nil {
		return nil, err
	}
	var req deliverRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if err := s.notifySvc.Deliver(ctx, req.UserID, req.Notification); err != nil {
		return nil, mapErr(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Retract(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.checkInternal(ctx); err != nil {
		return nil, err
	}
	var req retractRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if err := s.notifySvc.Retract(ctx, req.UserID, req.NotificationID); err != nil {
		return nil, mapErr(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

// -------- helpers --------

func (s *Server) checkInternal(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	got := first(md.Get(mdInternalToken))
	if got == "" {
		return status.Error(codes.Unauthenticated, "missing x-internal-token")
	}
	if s.internalToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.internalToken)) != 1 {
		return status.Error(codes.PermissionDenied, "invalid internal token")
	}
	return nil
}

func decodeStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "empty request")
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func mapErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	logger.FromContext(ctx).Error("grpc handler failed", slog.Any("err", err))
	return status.Error(codes.Internal, "internal error")
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
