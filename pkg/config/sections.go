package config

import (
	"strings"
	"time"
)

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PACKFINDERZ_SQLITE_PATH" default:"rewards.db"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PACKFINDERZ_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`

	ExpirationMinutes int `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
	// Inline service-account JSON wins over a key file path; with neither,
	// application default credentials apply.
	CredentialsJSON        string `envconfig:"PACKFINDERZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PACKFINDERZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RewardsTopic       string `envconfig:"PACKFINDERZ_PUBSUB_REWARDS_TOPIC" default:"pf-rewards-events"`
	OrdersSubscription string `envconfig:"PACKFINDERZ_PUBSUB_ORDERS_SUBSCRIPTION" default:"pf-rewards-orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKFINDERZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKFINDERZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PACKFINDERZ_OUTBOX_RETENTION_DAYS" default:"30"`
}

// LedgerConfig bounds how long a caller waits for the per-user lock.
type LedgerConfig struct {
	LockTimeout time.Duration `envconfig:"PACKFINDERZ_LEDGER_LOCK_TIMEOUT" default:"5s"`
}

type ReferralConfig struct {
	SubmissionLockTTL time.Duration `envconfig:"PACKFINDERZ_REFERRAL_SUBMISSION_LOCK_TTL" default:"10s"`
	SubmissionWait    time.Duration `envconfig:"PACKFINDERZ_REFERRAL_SUBMISSION_WAIT" default:"2s"`
}

type AffiliateConfig struct {
	CodeLength      int           `envconfig:"PACKFINDERZ_AFFILIATE_CODE_LENGTH" default:"8"`
	ClickRateLimit  int           `envconfig:"PACKFINDERZ_AFFILIATE_CLICK_RATE_LIMIT" default:"30"`
	ClickRateWindow time.Duration `envconfig:"PACKFINDERZ_AFFILIATE_CLICK_RATE_WINDOW" default:"1m"`
	AllowedOrigins  []string      `envconfig:"PACKFINDERZ_AFFILIATE_ALLOWED_ORIGINS"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"PACKFINDERZ_CRON_INTERVAL" default:"24h"`
	SweepConcurrency  int           `envconfig:"PACKFINDERZ_EXPIRY_SWEEP_CONCURRENCY" default:"4"`
	IdempotencyTTL    time.Duration `envconfig:"PACKFINDERZ_IDEMPOTENCY_TTL" default:"720h"`
	ConsumerDedupeTTL time.Duration `envconfig:"PACKFINDERZ_CONSUMER_DEDUPE_TTL" default:"168h"`
}

// ProgramConfig points at the YAML rewards program (rates, tiers, prizes, shop).
type ProgramConfig struct {
	Path string `envconfig:"PACKFINDERZ_PROGRAM_PATH"`
}
