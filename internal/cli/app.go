package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/cache"
	"github.com/ppiankov/textio/internal/correlation"
	"github.com/ppiankov/textio/internal/criteria"
	"github.com/ppiankov/textio/internal/llm"
	"github.com/ppiankov/textio/internal/metrics"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/persist"
	"github.com/ppiankov/textio/internal/pipeline"
	"github.com/ppiankov/textio/internal/resolve"
	"github.com/ppiankov/textio/internal/store"
	"github.com/ppiankov/textio/internal/worker"
)

// app is the wired service graph shared by serve, evaluate and batch
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	warehouse   *store.SQLWarehouse // nil when no store is configured
	repo        *store.Repository
	redis       *cache.RedisCache
	coordinator *persist.Coordinator
	pipeline    *pipeline.Pipeline
}

func storeEnabled(cfg *model.Config) bool {
	d := strings.ToLower(cfg.Store.Driver)
	return d != "" && d != "none"
}

// openStore opens the warehouse and applies the schema
func openStore(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*store.SQLWarehouse, error) {
	w, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, w); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// buildApp wires the pipeline and its collaborators from cfg
func buildApp(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(rt.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	rt.metrics = m

	var questions correlation.QuestionStore
	if storeEnabled(cfg) {
		w, err := openStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		rt.warehouse = w
		rt.repo = store.NewRepository(w)
		questions = rt.repo
	}

	rules, err := buildRules(cfg, rt.repo)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	var correlationCache cache.Cache = cache.NewMemoryCache(cfg.Cache.CorrelationTTL, cfg.Cache.CleanupInterval)
	if cfg.Cache.RedisAddr != "" {
		rt.redis = cache.NewRedisCache(cache.RedisOptions{
			Addr:       cfg.Cache.RedisAddr,
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			DefaultTTL: cfg.Cache.CorrelationTTL,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rt.redis.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, correlation cache is process-local until it recovers",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		cancel()
		correlationCache = cache.NewLayeredCache(correlationCache, rt.redis)
	}
	tracker := correlation.NewTracker(correlationCache, questions, cfg.Cache.CorrelationTTL, logger.Named("correlation"), m)

	provider, err := llm.NewProvider(providerConfig(cfg, logger))
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	completer := llm.NewCompleter(provider, llm.CompleterOptions{
		Retries: cfg.LLM.Retries,
		Backoff: cfg.LLM.RetryBackoff,
		Limiter: worker.NewLimiter(cfg.RateLimiting.ModelRequestsPerSecond, cfg.RateLimiting.ModelBurst),
		Metrics: m,
		Logger:  logger.Named("llm"),
	})

	deps := pipeline.Deps{
		Rules:          rules,
		Model:          completer,
		Resolver:       resolve.New(logger.Named("resolve"), m),
		Tracker:        tracker,
		Logger:         logger.Named("pipeline"),
		DefaultRuleset: cfg.Rules.Default,
	}

	if rt.repo != nil {
		var spool *persist.Spool
		if cfg.Concurrency.SpoolDir != "" {
			if spool, err = persist.NewSpool(cfg.Concurrency.SpoolDir); err != nil {
				rt.close(ctx)
				return nil, err
			}
		}
		queue := worker.NewQueue(cfg.Concurrency.PersistWorkers, cfg.Concurrency.PersistQueue, logger.Named("queue"), m)
		rt.coordinator = persist.NewCoordinator(rt.repo, queue, spool, logger.Named("persist"), m)
		if _, err := rt.coordinator.Replay(); err != nil {
			logger.Warn("spool replay failed", zap.Error(err))
		}
		deps.Recorder = rt.coordinator
		deps.History = rt.repo
	}

	rt.pipeline = pipeline.New(deps)
	return rt, nil
}

func providerConfig(cfg *model.Config, logger *zap.Logger) llm.Config {
	c := llm.ConfigFromModel(cfg.LLM)
	c.Logger = logger.Named("llm")
	return c
}

// buildRules layers the ruleset sources: file or embedded defaults,
// optionally overridden by the warehouse, behind an LRU
func buildRules(cfg *model.Config, repo *store.Repository) (criteria.Source, error) {
	file, err := criteria.LoadFile(cfg.Rules.File)
	if err != nil {
		return nil, err
	}
	var src criteria.Source = file
	if cfg.Rules.FromStore {
		if repo == nil {
			return nil, errors.New("rules.from_store requires a store")
		}
		src = criteria.NewStoreSource(repo, file)
	}
	return criteria.NewCachedSource(src, cfg.Cache.RulesSize, cfg.Cache.RulesTTL), nil
}

// close drains background writes and releases connections
func (rt *app) close(ctx context.Context) {
	if rt.coordinator != nil {
		if err := rt.coordinator.Close(ctx); err != nil {
			rt.logger.Warn("persist queue did not drain", zap.Error(err))
		}
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.warehouse != nil {
		if err := rt.warehouse.Close(); err != nil {
			rt.logger.Warn("close store", zap.Error(err))
		}
	}
}

// shutdown is close bounded by server.shutdown_timeout
func (rt *app) shutdown() {
	timeout := rt.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rt.close(ctx)
}
