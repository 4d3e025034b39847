package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
)

const (
	callTimeout = 10 * time.Second
	mdRequestID = "x-request-id"
)

// UnaryServerInterceptor: scoped-логгер в ctx, recovery, deadline по умолчанию,
// итоговая строка лога и счётчик по коду ответа.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}

		svc, method := splitMethod(info.FullMethod)
		l := callLogger(ctx, svc, method)
		ctx = logger.WithContext(ctx, l)

		defer func() {
			if r := recover(); r != nil {
				l.Error("grpc panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			code := status.Code(err)
			metrics.GRPCRequests.WithLabelValues(svc, method, code.String()).Inc()

			attrs := []any{
				slog.String("code", code.String()),
				slog.String("outcome", outcome(code)),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.String("err", status.Convert(err).Message()))
			}
			l.Log(ctx, levelFor(code), "grpc call", attrs...)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor нужен только health.Watch: recovery и строка лога.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		svc, method := splitMethod(info.FullMethod)
		l := callLogger(ss.Context(), svc, method)

		defer func() {
			if r := recover(); r != nil {
				l.Error("grpc stream panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			l.Debug("grpc stream closed",
				slog.String("code", status.Code(err).String()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		}()

		return handler(srv, ss)
	}
}

func callLogger(ctx context.Context, svc, method string) *slog.Logger {
	l := logger.L().With(slog.String("grpc_service", svc), slog.String("grpc_method", method))
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		l = l.With(slog.String("peer", p.Addr.String()))
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(mdRequestID); len(v) > 0 && v[0] != "" {
			l = l.With(slog.String("req_id", v[0]))
		}
	}
	return l
}

// splitMethod: "/realtime.v1.NotificationService/Deliver" -> ("realtime.v1.NotificationService", "Deliver").
func splitMethod(full string) (svc, method string) {
	full = strings.TrimPrefix(full, "/")
	svc, method, ok := strings.Cut(full, "/")
	if !ok {
		return "unknown", full
	}
	return svc, method
}

// outcome группирует коды для логов: отказ по internal-токену отделён от прочих ошибок клиента.
func outcome(code codes.Code) string {
	switch code {
	case codes.OK:
		return "ok"
	case codes.Unauthenticated, codes.PermissionDenied:
		return "auth_rejected"
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition:
		return "rejected"
	case codes.Canceled, codes.DeadlineExceeded:
		return "timeout"
	default:
		return "error"
	}
}

func levelFor(code codes.Code) slog.Level {
	switch outcome(code) {
	case "ok":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
