package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	backendadapter "github.com/clinicdesk/session-gateway/internal/adapters/backend"
	httpadapter "github.com/clinicdesk/session-gateway/internal/adapters/http"
	"github.com/clinicdesk/session-gateway/internal/adapters/maintenance"
	"github.com/clinicdesk/session-gateway/internal/adapters/postgres"
	"github.com/clinicdesk/session-gateway/internal/adapters/security"
	"github.com/clinicdesk/session-gateway/internal/adapters/storage"
	"github.com/clinicdesk/session-gateway/internal/application"
	"github.com/clinicdesk/session-gateway/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	guard      *application.AuthGuard
	tracker    *application.ActivityTracker
	sweeper    *maintenance.Sweeper
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping clinic session gateway",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"storage_backend", cfg.StorageBackend,
	)

	cleanup := func(context.Context) {}

	var kv ports.KeyValueStore
	switch cfg.StorageBackend {
	case "redis":
		redisClient, connErr := storage.Connect(ctx, cfg.RedisURL)
		if connErr != nil {
			return nil, fmt.Errorf("connect redis: %w", connErr)
		}
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			return nil, fmt.Errorf("ping redis: %w", pingErr)
		}
		kv = storage.NewRedisStore(redisClient, cfg.RedisPrefix)
		cleanup = func(context.Context) { _ = redisClient.Close() }
	case "file":
		fileStore, fileErr := storage.NewFileStore(cfg.StorageFile)
		if fileErr != nil {
			return nil, fmt.Errorf("init file store: %w", fileErr)
		}
		kv = fileStore
	default:
		kv = storage.NewMemoryStore()
	}

	var attempts ports.LoginAttemptRepository
	readyFn := func() error { return nil }
	if cfg.DatabaseURL != "" {
		pool, dbErr := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if dbErr != nil {
			return nil, fmt.Errorf("connect postgres: %w", dbErr)
		}
		sqlDB, dbErr := pool.DB()
		if dbErr != nil {
			return nil, fmt.Errorf("gorm sql db: %w", dbErr)
		}
		if migErr := postgres.RunMigrations(ctx, pool); migErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", migErr)
		}
		attempts = postgres.NewRepositories(pool).LoginAttempts
		prevCleanup := cleanup
		cleanup = func(ctx context.Context) {
			_ = sqlDB.Close()
			prevCleanup(ctx)
		}
		readyFn = func() error { return sqlDB.Ping() }
	}

	tokenSigner, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			cleanup(ctx)
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		tokenSigner, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}

	store := application.NewSessionStore(kv, logger)
	tracker := application.NewActivityTracker(store)
	guard := application.NewAuthGuard(store, tracker, logger, "/login")

	backendClient := backendadapter.NewClient(cfg.BackendBaseURL, backendadapter.Options{
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		Logger:     logger,
	})

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Env:             cfg.Env,
			TokenTTL:        cfg.TokenTTL,
			OfflineFallback: cfg.OfflineFallback,
			LanguageID:      cfg.LanguageID,
		},
		Store:    store,
		Guard:    guard,
		Backend:  backendClient,
		Signer:   tokenSigner,
		Hasher:   security.NewBcryptHasher(cfg.BcryptCost),
		Attempts: attempts,
		Logger:   logger,
	})

	handler := httpadapter.NewHandler(svc, tracker, readyFn)
	router := httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		JWKs: tokenSigner.PublicJWKs,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	sweeper := maintenance.NewSweeper(logger, store, cfg.SweepInterval, 30)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		guard:      guard,
		tracker:    tracker,
		sweeper:    sweeper,
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.tracker.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.tracker.Stop()
	r.guard.Close()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("session sweeper started", "interval", r.cfg.SweepInterval.String())
	err := r.sweeper.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
