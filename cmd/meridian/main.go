package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridianhr/meridian/internal/app"
	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/authz"
	"github.com/meridianhr/meridian/internal/catalog"
	"github.com/meridianhr/meridian/internal/grants"
	"github.com/meridianhr/meridian/internal/observability"
	"github.com/meridianhr/meridian/internal/platform/cache"
	"github.com/meridianhr/meridian/internal/platform/db"
	"github.com/meridianhr/meridian/internal/roles"
	"github.com/meridianhr/meridian/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, redisClient, logger)
	if cfg.SeedCatalog {
		if err := catalog.Seed(ctx, catalogService); err != nil {
			logger.Error("seed catalog", slog.Any("error", err))
			os.Exit(1)
		}
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	recorder := audit.NewRecorder(pool, logger)
	auditService := audit.NewService(pool)

	rolesRepo := roles.NewRepository(pool, recorder)
	rolesService := roles.NewService(rolesRepo)
	rolesService.SetObserver(metrics)

	grantsRepo := grants.NewRepository(pool, recorder)
	grantsService := grants.NewService(grantsRepo, rolesService, usersService, catalogService)
	grantsService.SetObserver(metrics)

	authzRepo := authz.NewRepository(pool)
	authzService := authz.NewService(authzRepo, catalogService, metrics, logger)
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthzHandler:    authz.NewHandler(logger, authzService),
		CatalogHandler:  catalog.NewHandler(logger, catalogService),
		RolesHandler:    roles.NewHandler(logger, rolesService),
		GrantsHandler:   grants.NewHandler(logger, grantsService),
		AuditHandler:    audit.NewHandler(logger, auditService),
		AuthzMiddleware: authzMiddleware,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
