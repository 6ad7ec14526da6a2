package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitcoach/access/internal/app"
	"github.com/fitcoach/access/internal/auth"
	"github.com/fitcoach/access/internal/observability"
	"github.com/fitcoach/access/internal/pageguard"
	"github.com/fitcoach/access/internal/platform/cache"
	"github.com/fitcoach/access/internal/platform/db"
	"github.com/fitcoach/access/internal/rbac"
	"github.com/fitcoach/access/internal/roles"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	sessions := auth.NewSessionStore(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	tokens, err := auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	roleCache := auth.NewCachedRoleStore(auth.NewPGRoleStore(dbpool), redisClient, cfg.RoleCacheTTL, logger).Observe(metrics)
	authenticator := auth.NewAuthenticator(auth.ChainProvider{tokens, sessions}, roleCache, logger)

	rbacMiddleware := rbac.Middleware{Authenticator: authenticator, Logger: logger, Recorder: metrics}

	rolesService := roles.NewService(roles.NewRepository(dbpool), roleCache, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, tokens, sessions),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		PageGuard:          pageguard.New(cfg.LoginPath, logger),
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return cache.Ping(ctx, redisClient) },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
