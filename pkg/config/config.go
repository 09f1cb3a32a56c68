package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "vitrin"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "VITRIN_DB_DSN"
	EnvDBHost = "VITRIN_DB_HOST"
	EnvDBUser = "VITRIN_DB_USER"
	EnvDBName = "VITRIN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	PayTR   PayTRConfig
	Loyalty LoyaltyConfig
	Reclaim ReclaimConfig
	Cron    CronConfig
	Flags   FeatureFlags
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VITRIN_APP_ENV" required:"true"`
	Port         string `envconfig:"VITRIN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VITRIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VITRIN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VITRIN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VITRIN_DB_DSN"`
	Driver string `envconfig:"VITRIN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VITRIN_DB_HOST"`
	LegacyPort     int    `envconfig:"VITRIN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VITRIN_DB_USER"`
	LegacyPassword string `envconfig:"VITRIN_DB_PASSWORD"`
	LegacyName     string `envconfig:"VITRIN_DB_NAME"`
	LegacySSLMode  string `envconfig:"VITRIN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VITRIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VITRIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VITRIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VITRIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VITRIN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VITRIN_REDIS_ADDR"`
	Password     string        `envconfig:"VITRIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"VITRIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VITRIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VITRIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VITRIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VITRIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VITRIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PayTRConfig carries the provider credentials used to verify webhook
// signatures. All three values are operator-provisioned; an incomplete set
// disables the webhook path with a configuration error.
type PayTRConfig struct {
	MerchantID   string `envconfig:"VITRIN_PAYTR_MERCHANT_ID"`
	MerchantKey  string `envconfig:"VITRIN_PAYTR_MERCHANT_KEY"`
	MerchantSalt string `envconfig:"VITRIN_PAYTR_MERCHANT_SALT"`

	// IdempotencyTTL bounds how long a processed delivery is remembered
	// for the redelivery fast path. The provider retries for at most a
	// day, so expired marks only cost one replay-safe reprocess.
	IdempotencyTTL time.Duration `envconfig:"VITRIN_PAYTR_IDEMPOTENCY_TTL" default:"24h"`
}

// Configured reports whether the full credential set is present.
func (p PayTRConfig) Configured() bool {
	return p.MerchantID != "" && p.MerchantKey != "" && p.MerchantSalt != ""
}

type LoyaltyConfig struct {
	// AccrualDivisor converts paid minor units into points: points = total / divisor.
	AccrualDivisor int `envconfig:"VITRIN_LOYALTY_ACCRUAL_DIVISOR" default:"100"`

	SilverThreshold   int `envconfig:"VITRIN_LOYALTY_SILVER_THRESHOLD" default:"1000"`
	GoldThreshold     int `envconfig:"VITRIN_LOYALTY_GOLD_THRESHOLD" default:"5000"`
	PlatinumThreshold int `envconfig:"VITRIN_LOYALTY_PLATINUM_THRESHOLD" default:"15000"`

	RedeemDenominations []int         `envconfig:"VITRIN_LOYALTY_REDEEM_DENOMINATIONS" default:"100,250,500,1000"`
	RedeemPercentDiv    int           `envconfig:"VITRIN_LOYALTY_REDEEM_PERCENT_DIVISOR" default:"50"`
	RedeemPercentCap    int           `envconfig:"VITRIN_LOYALTY_REDEEM_PERCENT_CAP" default:"25"`
	RedeemCouponTTL     time.Duration `envconfig:"VITRIN_LOYALTY_REDEEM_COUPON_TTL" default:"720h"`
}

type ReclaimConfig struct {
	DefaultMinutes int `envconfig:"VITRIN_RECLAIM_DEFAULT_MINUTES" default:"30"`
	MinMinutes     int `envconfig:"VITRIN_RECLAIM_MIN_MINUTES" default:"5"`
	MaxMinutes     int `envconfig:"VITRIN_RECLAIM_MAX_MINUTES" default:"1440"`
	BatchSize      int `envconfig:"VITRIN_RECLAIM_BATCH_SIZE" default:"200"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VITRIN_CRON_INTERVAL" default:"10m"`
	LockTTL  time.Duration `envconfig:"VITRIN_CRON_LOCK_TTL" default:"15m"`
}

type FeatureFlags struct {
	// AutoMigrate runs goose migrations on boot in dev environments.
	AutoMigrate bool `envconfig:"VITRIN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
