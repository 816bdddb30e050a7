package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, loaded from the environment so
// main stays lean.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Discord   DiscordConfig
	Nonce     NonceConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string `env:"VERETHFIER_ADDR" envDefault:":8080"`
	JWTSigningKey string `env:"ADMIN_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds the rule/assignment database and the read-only asset index.
// An empty URL selects the in-memory implementation.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	AssetIndexURL   string        `env:"ASSET_INDEX_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the nonce store. Empty URL keeps nonces in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the audit topic sink when brokers are set.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic        string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"verethfier.audit"`
	Partitions        int32    `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_AUDIT_REPLICATION" envDefault:"1"`
}

// DiscordConfig selects the Discord role platform. Empty token uses the in-memory platform.
type DiscordConfig struct {
	BotToken string `env:"DISCORD_BOT_TOKEN"`
}

type NonceConfig struct {
	TTL             time.Duration `env:"NONCE_TTL" envDefault:"300s"`
	JanitorInterval time.Duration `env:"NONCE_JANITOR_INTERVAL" envDefault:"1m"`
}

// ReconcileConfig drives the reverification scheduler.
type ReconcileConfig struct {
	Enabled     bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	Interval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"6h"`
	BatchSize   int           `env:"RECONCILE_BATCH_SIZE" envDefault:"10"`
	BatchDelay  time.Duration `env:"RECONCILE_BATCH_DELAY" envDefault:"1s"`
	Staleness   time.Duration `env:"RECONCILE_STALENESS" envDefault:"6h"`
	RetryWindow time.Duration `env:"RECONCILE_RETRY_WINDOW" envDefault:"72h"`
	GrantNew    bool          `env:"RECONCILE_GRANT_NEW" envDefault:"false"`
}

// RateLimitConfig throttles the public verification routes per client IP.
type RateLimitConfig struct {
	Enabled           bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests          int           `env:"RATE_LIMIT_REQUESTS" envDefault:"20"`
	Window            time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	TrustForwardedFor bool          `env:"RATE_LIMIT_TRUST_FORWARDED_FOR" envDefault:"false"`
}

// FromEnv builds the service config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Reconcile.BatchSize < 1 {
		return Config{}, fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", cfg.Reconcile.BatchSize)
	}
	if cfg.Nonce.TTL <= 0 {
		return Config{}, fmt.Errorf("NONCE_TTL must be positive, got %s", cfg.Nonce.TTL)
	}
	if cfg.Nonce.JanitorInterval <= 0 {
		return Config{}, fmt.Errorf("NONCE_JANITOR_INTERVAL must be positive, got %s", cfg.Nonce.JanitorInterval)
	}
	return cfg, nil
}
