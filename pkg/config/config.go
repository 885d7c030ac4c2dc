package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Shipping     ShippingConfig
	Revenue      RevenueConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Housekeeping HousekeepingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Revenue.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Housekeeping.SystemActor(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KOIPOND_APP_ENV" required:"true"`
	Port         string `envconfig:"KOIPOND_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KOIPOND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KOIPOND_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"KOIPOND_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// WorkerMetricsAddr is the listen address of the /metrics endpoint in
	// background workers. Empty disables it.
	WorkerMetricsAddr string `envconfig:"KOIPOND_WORKER_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KOIPOND_DB_DSN"`
	Driver string `envconfig:"KOIPOND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KOIPOND_DB_HOST"`
	LegacyPort     int    `envconfig:"KOIPOND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KOIPOND_DB_USER"`
	LegacyPassword string `envconfig:"KOIPOND_DB_PASSWORD"`
	LegacyName     string `envconfig:"KOIPOND_DB_NAME"`
	LegacySSLMode  string `envconfig:"KOIPOND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KOIPOND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KOIPOND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KOIPOND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KOIPOND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"KOIPOND_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"KOIPOND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KOIPOND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KOIPOND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KOIPOND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOIPOND_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"KOIPOND_REDIS_KEY_PREFIX" default:"koipond"`
}

type JWTConfig struct {
	Secret string `envconfig:"KOIPOND_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"KOIPOND_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool          `envconfig:"KOIPOND_AUTO_MIGRATE" default:"false"`
	IdempotencyTTL time.Duration `envconfig:"KOIPOND_IDEMPOTENCY_TTL" default:"24h"`
}

// ShippingConfig configures the carrier fee client and the breaker around it.
type ShippingConfig struct {
	BaseURL            string        `envconfig:"KOIPOND_SHIPPING_BASE_URL" default:"https://online-gateway.ghn.vn"`
	Token              string        `envconfig:"KOIPOND_SHIPPING_TOKEN"`
	QuoteTimeout       time.Duration `envconfig:"KOIPOND_SHIPPING_QUOTE_TIMEOUT" default:"5s"`
	DefaultServiceType int           `envconfig:"KOIPOND_SHIPPING_DEFAULT_SERVICE_TYPE" default:"2"`
	BreakerMinRequests uint32        `envconfig:"KOIPOND_SHIPPING_BREAKER_MIN_REQUESTS" default:"3"`
	BreakerFailRatio   float64       `envconfig:"KOIPOND_SHIPPING_BREAKER_FAILURE_RATIO" default:"0.6"`
	BreakerOpenTimeout time.Duration `envconfig:"KOIPOND_SHIPPING_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type RevenueConfig struct {
	PlatformFeeRate string `envconfig:"KOIPOND_REVENUE_PLATFORM_FEE_RATE" default:"0.03"`
}

// FeeRate returns the configured platform fee as a decimal fraction.
func (r RevenueConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(r.PlatformFeeRate)
	if err != nil {
		return decimal.RequireFromString("0.03")
	}
	return rate
}

func (r RevenueConfig) validate() error {
	rate, err := decimal.NewFromString(r.PlatformFeeRate)
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvRevenuePlatformFee, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1)", EnvRevenuePlatformFee)
	}
	return nil
}

type GCPConfig struct {
	ProjectID       string `envconfig:"KOIPOND_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"KOIPOND_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"KOIPOND_PUBSUB_EVENTS_TOPIC" default:"koipond-domain-events"`
	// OrderedDelivery keys messages by aggregate id. The subscription must
	// have message ordering enabled for it to take effect.
	OrderedDelivery bool `envconfig:"KOIPOND_PUBSUB_ORDERED_DELIVERY" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KOIPOND_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KOIPOND_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KOIPOND_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// HousekeepingConfig drives the scheduled maintenance worker.
type HousekeepingConfig struct {
	Interval        time.Duration `envconfig:"KOIPOND_HOUSEKEEPING_INTERVAL" default:"1h"`
	PendingOrderTTL time.Duration `envconfig:"KOIPOND_PENDING_ORDER_TTL" default:"240h"`
	OutboxRetention time.Duration `envconfig:"KOIPOND_OUTBOX_RETENTION" default:"720h"`
	SystemActorID   string        `envconfig:"KOIPOND_SYSTEM_ACTOR_ID" default:"00000000-0000-0000-0000-00000000a11c"`
}

// SystemActor parses the id recorded as the actor of automatic transitions.
func (h HousekeepingConfig) SystemActor() (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(h.SystemActorID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a uuid: %w", EnvSystemActorID, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil uuid", EnvSystemActorID)
	}
	return id, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:koipond.db?cache=shared"
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
