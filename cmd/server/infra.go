package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	"verethfier/internal/assignment"
	assignmentstore "verethfier/internal/assignment/store"
	"verethfier/internal/nonce"
	noncestore "verethfier/internal/nonce/store"
	"verethfier/internal/ownership"
	ownershipmemory "verethfier/internal/ownership/memory"
	ownershippostgres "verethfier/internal/ownership/postgres"
	"verethfier/internal/platform/config"
	"verethfier/internal/platform/metrics"
	"verethfier/internal/platform/postgres"
	platformredis "verethfier/internal/platform/redis"
	"verethfier/internal/ratelimit"
	ratelimitstore "verethfier/internal/ratelimit/store"
	"verethfier/internal/roleplatform"
	"verethfier/internal/rules"
	rulestore "verethfier/internal/rules/store"
	httptransport "verethfier/internal/transport/http"
	auditpublisher "verethfier/pkg/platform/audit/publisher"
	auditkafka "verethfier/pkg/platform/audit/publishers/kafka"
	auditmemory "verethfier/pkg/platform/audit/store/memory"
	"verethfier/pkg/platform/circuit"
)

const (
	auditBufferSize = 256
	breakerCooldown = 30 * time.Second
)

// infra holds the storage and integration backends selected by config.
// Every backend has an in-memory fallback so the service runs without
// external dependencies.
type infra struct {
	rules        rules.Store
	assignments  assignment.Store
	nonces       nonce.Store
	nonceJanitor *noncestore.InMemoryNonceStore
	oracle       ownership.Oracle
	platform     roleplatform.Platform
	limits       ratelimit.Store
	audit        *auditpublisher.Publisher

	checks  []httptransport.ReadinessCheck
	closers []func()
}

func (i *infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (_ *infra, err error) {
	i := &infra{}
	defer func() {
		if err != nil {
			i.Close()
		}
	}()

	if err := i.openDatabase(ctx, cfg.Database, log); err != nil {
		return nil, err
	}
	if err := i.openRedis(ctx, cfg.Redis, log); err != nil {
		return nil, err
	}
	if err := i.openOracle(ctx, cfg.Database, log, m); err != nil {
		return nil, err
	}
	if err := i.openPlatform(cfg.Discord, log); err != nil {
		return nil, err
	}
	if err := i.openAudit(ctx, cfg.Kafka, log); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *infra) openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) error {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, rules and assignments are kept in memory")
		i.rules = rulestore.NewInMemory()
		i.assignments = assignmentstore.NewInMemory()
		return nil
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, func() { _ = db.Close() })
	i.checks = append(i.checks, httptransport.ReadinessCheck{Name: "postgres", Check: db.PingContext})
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	i.rules = rulestore.NewPostgres(db)
	i.assignments = assignmentstore.NewPostgres(db)
	return nil
}

// openRedis backs nonces and rate limit counters. Without Redis both stay
// per-process.
func (i *infra) openRedis(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) error {
	client, err := platformredis.New(ctx, cfg)
	if err != nil {
		return err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, nonces and rate limits are kept in memory")
		mem := noncestore.NewInMemory()
		i.nonces = mem
		i.nonceJanitor = mem
		i.limits = ratelimitstore.NewInMemory()
		return nil
	}
	i.closers = append(i.closers, func() { _ = client.Close() })
	i.checks = append(i.checks, httptransport.ReadinessCheck{Name: "redis", Check: client.Health})
	i.nonces = noncestore.NewRedis(client.Client)
	i.limits = ratelimitstore.NewRedis(client.Client)
	return nil
}

// openOracle prefers a dedicated asset index and falls back to the main
// database, which carries the nft_holdings table in single-node setups.
func (i *infra) openOracle(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, m *metrics.Metrics) error {
	dsn := cfg.AssetIndexURL
	if dsn == "" {
		dsn = cfg.URL
	}
	if dsn == "" {
		log.Warn("no asset index configured, ownership queries use an empty in-memory index")
		i.oracle = ownershipmemory.New()
		return nil
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	i.closers = append(i.closers, pool.Close)
	i.checks = append(i.checks, httptransport.ReadinessCheck{Name: "asset_index", Check: pool.Ping})
	i.oracle = newBreakingOracle(pool, log, m)
	return nil
}

func newBreakingOracle(pool *pgxpool.Pool, log *slog.Logger, m *metrics.Metrics) ownership.Oracle {
	breaker := circuit.New("asset-index", circuit.WithCooldown(breakerCooldown))
	return ownership.NewBreakingOracle(ownershippostgres.New(pool), breaker,
		ownership.WithBreakerLogger(log),
		ownership.WithStateGauge(m.OracleBreakerOpen),
	)
}

func (i *infra) openPlatform(cfg config.DiscordConfig, log *slog.Logger) error {
	if cfg.BotToken == "" {
		log.Warn("DISCORD_BOT_TOKEN not set, role changes are only recorded in memory")
		i.platform = roleplatform.NewInMemory()
		return nil
	}
	session, err := roleplatform.NewDiscordSession(cfg.BotToken)
	if err != nil {
		return err
	}
	platform, err := roleplatform.NewDiscord(session, roleplatform.WithLogger(log))
	if err != nil {
		return err
	}
	i.platform = platform
	return nil
}

func (i *infra) openAudit(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) error {
	opts := []auditpublisher.Option{
		auditpublisher.WithLogger(log),
		auditpublisher.WithAsyncBuffer(auditBufferSize),
	}
	if len(cfg.Brokers) > 0 {
		client, err := openKafka(ctx, cfg)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, client.Close)
		opts = append(opts, auditpublisher.WithSink(auditkafka.NewSink(client, cfg.AuditTopic)))
	}
	i.audit = auditpublisher.NewPublisher(auditmemory.NewInMemoryStore(), opts...)
	i.closers = append(i.closers, i.audit.Close)
	return nil
}

func openKafka(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	client, err := auditkafka.NewClient(cfg.Brokers, cfg.AuditTopic)
	if err != nil {
		return nil, err
	}
	if err := auditkafka.EnsureTopic(ctx, client, cfg.AuditTopic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	return client, nil
}
