package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cwrk-planet/realtime-service/config"
	"github.com/cwrk-planet/realtime-service/internal/bus"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/memstore"
	"github.com/cwrk-planet/realtime-service/internal/postgres"
	"github.com/cwrk-planet/realtime-service/internal/security"
	"github.com/cwrk-planet/realtime-service/internal/service"
	grpcx "github.com/cwrk-planet/realtime-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/realtime-service/internal/transport/http"
	"github.com/cwrk-planet/realtime-service/internal/transport/ws"
)

type repos struct {
	rooms    service.RoomRepository
	messages service.MessageRepository
	presence service.PresenceRepository
	users    service.UserRepository
	close    func()
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	defer func() { _ = logger.Sync() }()
	slog.Info("starting realtime-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version,
		"storage", cfg.Storage.Driver, "bus", cfg.Bus.Driver)

	if err := run(cfg); err != nil {
		slog.Error("realtime-service stopped with error", "err", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// --- tracing ---
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	// --- storage ---
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// --- bus ---
	b, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}

	// --- auth ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Security.JWT.PublicKeyPath)
	if err != nil {
		closeBus()
		return fmt.Errorf("load jwt public key: %w", err)
	}
	validator := security.NewJWTValidator(pub, cfg.Security.JWT.Issuer, cfg.Security.JWT.Audience, cfg.Security.JWT.ClockSkew)

	// --- services ---
	authSvc := service.NewAuthService(validator, st.users)
	chatSvc := service.NewChatService(st.rooms, st.messages, b)
	chatSvc.SetMaxMessageLength(cfg.Chat.MaxMessageLength)
	presenceSvc := service.NewPresenceService(st.presence, st.rooms, b)
	notifySvc := service.NewNotificationService(b)

	// --- WS ---
	registry := ws.NewRegistry(b)
	wsServer := ws.NewServer(registry, b, authSvc, chatSvc, presenceSvc, ws.Options{
		PingEvery:    cfg.WS.PingEvery,
		WriteTimeout: cfg.WS.WriteTimeout,
		SendBuffer:   cfg.WS.SendBuffer,
		ReadLimit:    cfg.WS.ReadLimit,
	})

	// --- HTTP ---
	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(chatSvc, presenceSvc, notifySvc, authSvc),
		WS:             wsServer,
		Auth:           authSvc,
		InternalToken:  cfg.Security.InternalToken,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	grpcx.Register(grpcServer, grpcx.NewServer(notifySvc, cfg.Security.InternalToken))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	// --- run both servers ---
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "cause", context.Cause(gctx))
		healthSrv.Shutdown()

		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		// http не ждёт hijacked-соединений, поэтому сокеты закрываем отдельно, пока шина жива
		if err := httpSrv.Shutdown(ctxShutdown); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		if err := wsServer.Shutdown(ctxShutdown); err != nil {
			slog.Warn("ws shutdown", "err", err)
		}
		grpcServer.GracefulStop()
		closeBus()
		if err := tp.Shutdown(ctxShutdown); err != nil {
			slog.Warn("tracer shutdown", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg *config.Config) (*repos, error) {
	if cfg.Storage.Driver == "memory" {
		st := memstore.New()
		for _, u := range cfg.Storage.Seed {
			st.AddUser(domain.User{ID: u.ID, Username: u.Username})
		}
		slog.Warn("using in-memory storage", "seed_users", len(cfg.Storage.Seed))
		return &repos{
			rooms:    st.Rooms(),
			messages: st.Messages(),
			presence: st.Presence(),
			users:    st.Users(),
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres.ToPGConfig())
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return newPostgresRepos(pool), nil
}

func newPostgresRepos(pool *pgxpool.Pool) *repos {
	return &repos{
		rooms:    postgres.NewRoomRepository(pool),
		messages: postgres.NewMessageRepository(pool),
		presence: postgres.NewPresenceRepository(pool),
		users:    postgres.NewUserRepository(pool),
		close:    pool.Close,
	}
}

func openBus(ctx context.Context, cfg *config.Config) (bus.Bus, func(), error) {
	if cfg.Bus.Driver != "redis" {
		b := bus.NewMemoryBus()
		return b, func() { _ = b.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.Bus.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	b, err := bus.NewRedisBus(ctx, client, cfg.Bus.ChannelPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis bus: %w", err)
	}
	return b, func() {
		if err := b.Close(); err != nil {
			slog.Warn("redis bus close", "err", err)
		}
		_ = client.Close()
	}, nil
}
