package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/client"
	"github.com/socialhub/backend/internal/config"
	"github.com/socialhub/backend/internal/db"
	"github.com/socialhub/backend/internal/handler"
	"github.com/socialhub/backend/internal/logging"
	"github.com/socialhub/backend/internal/metrics"
	"github.com/socialhub/backend/internal/revocation"
	"github.com/socialhub/backend/internal/service"
)

// @title socialhub auth API
// @version 1.0
// @description Registration, login and token revocation.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	store := db.NewPostgres(pool)

	registry, cleanup, err := newRegistry(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	notifier, err := service.NewNotifier(cfg.Notify)
	if err != nil {
		return err
	}

	authService, err := service.NewAuthService(store, registry, notifier, cfg.Auth, logger)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.GinMode)
	router := handler.NewRouter(cfg.Server, authService, metrics.NewRegistry(), logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	authService.Wait()
	return err
}

// newRegistry builds the revocation backend named by REVOCATION_BACKEND and
// starts a sweeper for backends without native expiry.
func newRegistry(ctx context.Context, cfg config.Config, store *db.Postgres, logger *zap.Logger) (revocation.Registry, func(), error) {
	noop := func() {}

	interval, err := time.ParseDuration(cfg.Revocation.SweepInterval)
	if err != nil || interval <= 0 {
		return nil, noop, fmt.Errorf("invalid REVOCATION_SWEEP_INTERVAL %q", cfg.Revocation.SweepInterval)
	}

	switch cfg.Revocation.Backend {
	case "redis":
		rdb, err := client.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("revocation backend", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
		return revocation.NewRedisRegistry(rdb), func() { _ = rdb.Close() }, nil
	case "postgres":
		registry := revocation.NewPostgresRegistry(store)
		go revocation.RunSweeper(ctx, registry, interval, logger)
		logger.Info("revocation backend", zap.String("backend", "postgres"), zap.Duration("sweep_interval", interval))
		return registry, noop, nil
	case "memory":
		registry := revocation.NewMemoryRegistry()
		go revocation.RunSweeper(ctx, registry, interval, logger)
		logger.Warn("revocation backend is process-local; revocations are lost on restart", zap.String("backend", "memory"))
		return registry, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown REVOCATION_BACKEND %q", cfg.Revocation.Backend)
	}
}
