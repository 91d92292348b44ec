package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/config"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysisclient"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/cache"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/db"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/workflow"
)

// cacheBackend is the durable cache plus whatever the chosen store needs
// for health checks and shutdown.
type cacheBackend struct {
	cache  *cache.Cache
	checks map[string]db.Check
	close  func()
}

func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*cacheBackend, error) {
	b := &cacheBackend{checks: map[string]db.Check{}, close: func() {}}

	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		store = cache.NewPGStore(pool)
		b.checks["postgres"] = db.PoolCheck(pool)
		b.close = pool.Close
		logger.Info().Msg("connected to database")
	case config.CacheBackendRedis:
		client, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store = cache.NewRedisStore(client)
		b.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		b.close = func() { _ = client.Close() }
		logger.Info().Msg("connected to redis")
	default:
		store = cache.NewMemoryStore(cfg.CacheMaxEntries)
	}

	b.cache = cache.New(store, logger, cache.Namespaces(cfg.DraftTTL, cfg.AnalysisTTL))
	logger.Info().Str("backend", cfg.CacheBackend).Msg("cache ready")
	return b, nil
}

func newAnalysisClient(cfg *config.Config, baseURL string, logger zerolog.Logger) (*analysisclient.Client, error) {
	opts := []analysisclient.Option{
		analysisclient.WithPollInterval(cfg.PollInterval),
		analysisclient.WithRequestTimeout(cfg.AnalysisRequestTimeout),
		analysisclient.WithLogger(logger),
	}
	if cfg.ServiceTokenSecret != "" {
		ts, err := auth.NewServiceTokenSource(auth.ServiceTokenConfig{
			Secret:   []byte(cfg.ServiceTokenSecret),
			Issuer:   cfg.ServiceTokenIssuer,
			Audience: cfg.ServiceTokenAudience,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysisclient.WithTokenSource(ts))
	}
	return analysisclient.New(baseURL, opts...), nil
}

func controllerFactory(cfg *config.Config, svc workflow.AnalysisService, c *cache.Cache, logger zerolog.Logger) workflow.Factory {
	return func() *workflow.Controller {
		return workflow.NewController(svc, c,
			workflow.WithLogger(logger),
			workflow.WithDebounce(cfg.DraftDebounce),
			workflow.WithMaxPollAttempts(cfg.PollMaxAttempts),
			workflow.WithHistoryPageSize(cfg.HistoryPageSize),
		)
	}
}
