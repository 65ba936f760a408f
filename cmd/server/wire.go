package main

import (
	"context"
	"log/slog"

	"match-gateway/internal/federation"
	"match-gateway/internal/patient"
	"match-gateway/internal/platform/config"
	"match-gateway/internal/platform/metrics"
	platformredis "match-gateway/internal/platform/redis"
	"match-gateway/internal/search"
	"match-gateway/internal/trust"
	"match-gateway/internal/vocabulary"
	"match-gateway/pkg/platform/audit"
)

// app holds the wired services shared by the serve, index and auth
// commands.
type app struct {
	cfg        config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	engine     *search.SQLiteEngine
	redis      *platformredis.Client
	recorder   *audit.Recorder
	vocab      *vocabulary.Service
	normalizer *patient.Normalizer
	matcher    *patient.MatchService
	registry   *trust.Registry
	proxy      *federation.Proxy

	trustStore interface {
		trust.Store
		Close() error
	}
}

// newApp wires everything from configuration. withMetrics is false for
// one-shot CLI commands so collectors register only in the server process.
func newApp(ctx context.Context, log *slog.Logger, withMetrics bool) (*app, error) {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if withMetrics {
		a.metrics = metrics.New()
	}

	engine, err := search.OpenSQLite(cfg.EnginePath)
	if err != nil {
		return nil, err
	}
	a.engine = engine

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = redisClient

	var publisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		publisher = kafkaPub
	}
	a.recorder = audit.NewRecorder(log, publisher)

	vocabOpts := []vocabulary.Option{vocabulary.WithLogger(log)}
	if redisClient != nil {
		cache := vocabulary.NewRedisCache(redisClient.Client, config.TermCacheTTL, log)
		vocabOpts = append(vocabOpts, vocabulary.WithCache(cache))
	}
	a.vocab = vocabulary.NewService(engine, vocabOpts...)

	a.normalizer = patient.NewNormalizer(a.vocab, patient.WithNormalizerLogger(log))
	a.matcher = patient.NewMatchService(engine, a.normalizer,
		patient.WithLogger(log),
		patient.WithAudit(a.recorder),
		patient.WithMetrics(a.metrics),
	)

	var store trust.Store = trust.NewEngineStore(engine)
	if cfg.DatabaseURL != "" {
		pgStore, err := trust.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.trustStore = pgStore
		store = pgStore
	}
	a.registry = trust.NewRegistry(store,
		trust.WithLogger(log),
		trust.WithAudit(a.recorder),
	)

	a.proxy = federation.NewProxy(a.registry,
		federation.WithLogger(log),
		federation.WithMetrics(a.metrics),
		federation.WithWorkers(cfg.Fanout.Workers),
		federation.WithCallTimeout(cfg.Fanout.CallTimeout),
		federation.WithBatchTimeout(cfg.Fanout.BatchTimeout),
	)

	return a, nil
}

// Close releases every resource the app opened, in reverse order.
func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.trustStore != nil {
		_ = a.trustStore.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.engine != nil {
		_ = a.engine.Close()
	}
}
