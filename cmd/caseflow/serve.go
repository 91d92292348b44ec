package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/config"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/db"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/middleware"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/workflow"
)

const (
	shutdownTimeout    = 10 * time.Second
	housekeepingPeriod = time.Minute
	sessionIdleTimeout = 2 * time.Hour
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	backend, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	client, err := newAnalysisClient(cfg, cfg.AnalysisBaseURL, logger)
	if err != nil {
		return err
	}

	registry := workflow.NewRegistry(controllerFactory(cfg, client, backend.cache, logger))
	defer registry.CloseAll()

	checks := map[string]db.Check{"analysis": client.Ping}
	for name, check := range backend.checks {
		checks[name] = check
	}

	e, err := newServer(cfg, logger, registry, checks, backend.checks)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTP(gctx, e, cfg, logger)
	})
	g.Go(func() error {
		housekeeping(gctx, registry, logger)
		return nil
	})
	return g.Wait()
}

// newServer builds the echo instance with global middleware, health
// endpoints and the session API.
func newServer(cfg *config.Config, logger zerolog.Logger, registry *workflow.Registry, checks, dbChecks map[string]db.Check) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		key, generated, err := resolveSigningKey(cfg.AuthSigningKey)
		if err != nil {
			return nil, err
		}
		if generated {
			logger.Warn().Msg("AUTH_SIGNING_KEY not set: using a random key, externally issued tokens will be rejected")
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", db.HealthHandler(checks))
	if _, ok := dbChecks["postgres"]; ok {
		e.GET("/health/db", db.HealthHandler(map[string]db.Check{"postgres": dbChecks["postgres"]}))
	}

	apiV1 := e.Group("/api/v1")
	workflow.NewHandler(registry).RegisterRoutes(apiV1)
	return e, nil
}

// runHTTP serves until ctx is cancelled, then shuts down gracefully.
func runHTTP(ctx context.Context, e *echo.Echo, cfg *config.Config, logger zerolog.Logger) error {
	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return <-errCh
}

// housekeeping closes idle sessions.
func housekeeping(ctx context.Context, registry *workflow.Registry, logger zerolog.Logger) {
	ticker := time.NewTicker(housekeepingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := registry.Sweep(sessionIdleTimeout); n > 0 {
			logger.Info().Int("sessions", n).Msg("closed idle sessions")
		}
	}
}
