package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wonny/aegis-metrics/internal/checkpoint"
	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/metrics"
	"github.com/wonny/aegis-metrics/internal/pipeline"
	"github.com/wonny/aegis-metrics/internal/quality"
	"github.com/wonny/aegis-metrics/internal/sink"
	"github.com/wonny/aegis-metrics/internal/source"
	"github.com/wonny/aegis-metrics/internal/universe"
	"github.com/wonny/aegis-metrics/pkg/clock"
	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/database"
	"github.com/wonny/aegis-metrics/pkg/httputil"
	"github.com/wonny/aegis-metrics/pkg/logger"
	"github.com/wonny/aegis-metrics/pkg/redis"
)

const (
	providerKey = "yahoo"
	redisPrefix = "aegis:metrics"
)

// app holds the collaborators shared by all commands.
// Built once per command invocation and closed on exit.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	clock clock.Clock

	pg     *database.DB
	sqlite *sql.DB
	redis  *redis.Client
	http   *httputil.Client

	store contracts.CheckpointStore
	sink  contracts.SinkAdapter
}

// loadConfig reads configuration and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnvFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("❌ Failed to load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp loads config and opens the configured store backend.
// An unreachable store is reported as contracts.ErrStoreUnavailable.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		log:   logger.New(cfg),
		clock: clock.New(),
	}

	switch cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrStoreUnavailable, err)
		}
		a.sqlite = db
		a.store = checkpoint.NewSQLiteStore(db, a.clock)
		a.sink = sink.NewSQLiteSink(db)

	default:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrStoreUnavailable, err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: migrate: %v", contracts.ErrStoreUnavailable, err)
		}
		a.pg = db
		a.store = checkpoint.NewPostgresStore(db.Pool, a.clock)
		a.sink = sink.NewPostgresSink(db.Pool)
	}

	a.log.WithFields(map[string]interface{}{
		"backend": cfg.Store.Backend,
		"env":     cfg.Env,
	}).Debug("Store opened")

	return a, nil
}

// connectRedis is best effort: without Redis the pipeline runs uncached with
// an in-process rate limit only
func (a *app) connectRedis(ctx context.Context) *redis.Client {
	if a.redis != nil {
		return a.redis
	}
	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		a.log.WithError(err).Warn("Redis unavailable, continuing without cache and shared rate limit")
		rc = redis.Disabled()
	}
	a.redis = rc
	return rc
}

// httpClient builds the shared HTTP client, adding the Redis limiter when available
func (a *app) httpClient(ctx context.Context) *httputil.Client {
	if a.http != nil {
		return a.http
	}
	client := httputil.New(a.cfg.Source, a.log)
	if rc := a.connectRedis(ctx); rc.Enabled() && a.cfg.Source.RequestsPerSecond > 0 {
		client.WithRateLimiter(
			redis.NewRateLimiter(rc, redisPrefix),
			redis.SourceRateLimit(providerKey, a.cfg.Source.RequestsPerSecond),
		)
	}
	a.http = client
	return client
}

// universeLoader resolves universe sources with the shared HTTP client
func (a *app) universeLoader(ctx context.Context, opts universe.Options) *universe.Loader {
	return universe.NewLoader(a.httpClient(ctx), opts)
}

// orchestrator wires source, validator, engine and stores into a pipeline
func (a *app) orchestrator(ctx context.Context, opts pipeline.Options) (*pipeline.Orchestrator, error) {
	p := a.cfg.Pipeline

	windows, err := metrics.ParseWindows(p.Windows)
	if err != nil {
		return nil, fmt.Errorf("windows: %w", err)
	}

	validator := quality.NewValidator(quality.Config{
		ExtremeMoveRatio: p.ExtremeMoveRatio,
		ReturnTrim:       p.ReturnTrim,
	}, a.log)

	engine := metrics.NewEngine(metrics.Config{
		RiskFreeRate:        p.RiskFreeRate,
		PeriodsPerYear:      p.TradingDaysPerYear,
		Windows:             windows,
		DividendCeiling:     p.DividendCeiling,
		RequireCurrentPrice: p.RequireCurrentPrice,
		RequireBasicReturn:  p.RequireBasicReturn,
	}, validator, a.log)

	cache := redis.NewCache(a.connectRedis(ctx), redisPrefix)
	src := source.NewYahooClient(a.httpClient(ctx), cache, a.cfg.Source, a.clock, a.log)

	return pipeline.New(pipeline.PipelineContext{
		Source:     src,
		Sink:       a.sink,
		Checkpoint: a.store,
		Validator:  validator,
		Engine:     engine,
		Options:    opts,
		Clock:      a.clock,
		Logger:     a.log,
	})
}

// health pings the active backend
func (a *app) health(ctx context.Context) (*database.HealthStatus, error) {
	if a.sqlite != nil {
		return database.SQLiteHealthCheck(ctx, a.sqlite)
	}
	return a.pg.HealthCheck(ctx)
}

// Close releases every connection. Safe on a partially built app.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlite != nil {
		_ = a.sqlite.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
