package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every storefront environment variable.
const EnvPrefix = "PFSTORE"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App      AppConfig
	API      APIConfig
	Sync     SyncConfig
	Checkout CheckoutConfig
	Draft    DraftConfig
	Redis    RedisConfig
	Square   SquareConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Draft.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PFSTORE_APP_ENV" default:"development"`
	LogLevel     string `envconfig:"PFSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PFSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// APIConfig points at the remote storefront API.
type APIConfig struct {
	BaseURL        string        `envconfig:"PFSTORE_API_BASE_URL" required:"true"`
	RequestTimeout time.Duration `envconfig:"PFSTORE_API_REQUEST_TIMEOUT" default:"15s"`
}

// SyncConfig drives the background cart synchronizer.
type SyncConfig struct {
	Interval time.Duration `envconfig:"PFSTORE_SYNC_INTERVAL" default:"10s"`
}

// CheckoutConfig tunes submission retries and the display tax rate.
type CheckoutConfig struct {
	MaxAttempts    int           `envconfig:"PFSTORE_CHECKOUT_MAX_ATTEMPTS" default:"3"`
	BackoffBase    time.Duration `envconfig:"PFSTORE_CHECKOUT_BACKOFF_BASE" default:"1s"`
	BackoffCap     time.Duration `envconfig:"PFSTORE_CHECKOUT_BACKOFF_CAP" default:"5s"`
	TaxRate        string        `envconfig:"PFSTORE_CHECKOUT_TAX_RATE" default:"0.08"`
	ValidationWait time.Duration `envconfig:"PFSTORE_CHECKOUT_VALIDATION_WAIT" default:"500ms"`
}

// DraftConfig selects where the in-progress checkout form is persisted.
type DraftConfig struct {
	Backend string        `envconfig:"PFSTORE_DRAFT_BACKEND" default:"sqlite"`
	Path    string        `envconfig:"PFSTORE_DRAFT_SQLITE_PATH" default:"storefront.db"`
	TTL     time.Duration `envconfig:"PFSTORE_DRAFT_TTL" default:"168h"`
}

const (
	DraftBackendMemory = "memory"
	DraftBackendSQLite = "sqlite"
	DraftBackendRedis  = "redis"
)

func (d DraftConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Backend)) {
	case DraftBackendMemory, DraftBackendSQLite, DraftBackendRedis:
		return nil
	default:
		return fmt.Errorf("draft backend must be %q, %q, or %q", DraftBackendMemory, DraftBackendSQLite, DraftBackendRedis)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"PFSTORE_REDIS_URL"`
	Address      string        `envconfig:"PFSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"PFSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PFSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PFSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PFSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PFSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PFSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PFSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"PFSTORE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"PFSTORE_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"PFSTORE_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}
