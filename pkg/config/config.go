package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "TIANGUIS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TIANGUIS_DB_DSN"
	EnvDBHost = "TIANGUIS_DB_HOST"
	EnvDBUser = "TIANGUIS_DB_USER"
	EnvDBName = "TIANGUIS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Escrow       EscrowConfig
	Commission   CommissionConfig
	Stripe       StripeConfig
	Carrier      CarrierConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
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
	Env            string   `envconfig:"TIANGUIS_APP_ENV" required:"true"`
	Port           string   `envconfig:"TIANGUIS_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"TIANGUIS_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"TIANGUIS_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"TIANGUIS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TIANGUIS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TIANGUIS_DB_DSN"`
	Driver string `envconfig:"TIANGUIS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIANGUIS_DB_HOST"`
	LegacyPort     int    `envconfig:"TIANGUIS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIANGUIS_DB_USER"`
	LegacyPassword string `envconfig:"TIANGUIS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIANGUIS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIANGUIS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIANGUIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIANGUIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIANGUIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIANGUIS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIANGUIS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TIANGUIS_REDIS_ADDR"`
	Password     string        `envconfig:"TIANGUIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIANGUIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIANGUIS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIANGUIS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIANGUIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIANGUIS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIANGUIS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type EscrowConfig struct {
	WindowDays      int           `envconfig:"TIANGUIS_ESCROW_WINDOW_DAYS" default:"7"`
	SweepInterval   time.Duration `envconfig:"TIANGUIS_ESCROW_SWEEP_INTERVAL" default:"4h"`
	SweepWorkers    int           `envconfig:"TIANGUIS_ESCROW_SWEEP_WORKERS" default:"4"`
	SweepBatchSize  int           `envconfig:"TIANGUIS_ESCROW_SWEEP_BATCH_SIZE" default:"200"`
	TransferTimeout time.Duration `envconfig:"TIANGUIS_ESCROW_TRANSFER_TIMEOUT" default:"30s"`
}

// Window returns the escrow hold duration.
func (e EscrowConfig) Window() time.Duration {
	days := e.WindowDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

type CommissionConfig struct {
	DefaultRateBps int64 `envconfig:"TIANGUIS_COMMISSION_DEFAULT_RATE_BPS" default:"1000"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"TIANGUIS_STRIPE_API_KEY"`
	SigningSecret string `envconfig:"TIANGUIS_STRIPE_SIGNING_SECRET"`
	Env           string `envconfig:"TIANGUIS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CarrierConfig struct {
	WebhookToken string `envconfig:"TIANGUIS_CARRIER_WEBHOOK_TOKEN"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TIANGUIS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TIANGUIS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TIANGUIS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"TIANGUIS_PUBSUB_ORDERS_TOPIC" default:"tg-order-events"`
	OrdersSubscription string `envconfig:"TIANGUIS_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TIANGUIS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TIANGUIS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TIANGUIS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TIANGUIS_AUTO_MIGRATE" default:"false"`
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
