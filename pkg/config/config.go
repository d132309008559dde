// Package config loads service configuration from PACKFINDERZ_* environment
// variables. Every binary shares one Config; each reads the sections it needs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ledger       LedgerConfig
	Referral     ReferralConfig
	Affiliate    AffiliateConfig
	Cron         CronConfig
	Program      ProgramConfig
}

// minProdSecret is the shortest HS256 secret accepted when APP_ENV is prod.
const minProdSecret = 32

// Load reads the environment, derives the database DSN and checks the
// result. All validation problems are reported together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolve(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig tags cannot express.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, msg string) {
		if !ok {
			errs = multierr.Append(errs, errors.New(msg))
		}
	}
	check(c.Redis.URL != "" || c.Redis.Address != "", "redis url or address is required")
	check(c.Outbox.BatchSize > 0, "outbox batch size must be positive")
	check(c.Outbox.PollIntervalMS > 0, "outbox poll interval must be positive")
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive")
	check(c.Cron.Interval > 0, "cron interval must be positive")
	check(c.Cron.SweepConcurrency > 0, "expiry sweep concurrency must be positive")
	check(c.JWT.ExpirationMinutes > 0, "jwt expiration must be positive")
	if c.App.IsProd() {
		check(c.DB.Driver != DriverSQLite, "sqlite is not allowed in prod")
		check(len(c.JWT.Secret) >= minProdSecret, "jwt secret too short for prod")
	}
	return errs
}

// resolve fills DSN when it was not given directly: from SQLitePath when the
// sqlite flag is on, otherwise from the discrete PACKFINDERZ_DB_* variables.
func (db *DBConfig) resolve(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   db.LegacyHost + ":" + strconv.Itoa(db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
