package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Billing      BillingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"LUMEN_APP_ENV" required:"true"`
	Port         string `envconfig:"LUMEN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LUMEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LUMEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"LUMEN_DB_DSN"`

	Host     string `envconfig:"LUMEN_DB_HOST"`
	Port     int    `envconfig:"LUMEN_DB_PORT" default:"5432"`
	User     string `envconfig:"LUMEN_DB_USER"`
	Password string `envconfig:"LUMEN_DB_PASSWORD"`
	Name     string `envconfig:"LUMEN_DB_NAME"`
	SSLMode  string `envconfig:"LUMEN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUMEN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUMEN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUMEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUMEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUMEN_REDIS_URL"`
	Address      string        `envconfig:"LUMEN_REDIS_ADDR"`
	Password     string        `envconfig:"LUMEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUMEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUMEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUMEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUMEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUMEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUMEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LUMEN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUMEN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LUMEN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey         string `envconfig:"LUMEN_STRIPE_API_KEY"`
	Secret         string `envconfig:"LUMEN_STRIPE_SECRET"`
	Env            string `envconfig:"LUMEN_STRIPE_ENV" default:"test"`
	StarterPriceID string `envconfig:"LUMEN_STRIPE_STARTER_PRICE_ID"`
	ProPriceID     string `envconfig:"LUMEN_STRIPE_PRO_PRICE_ID"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	CheckoutSuccessURL  string        `envconfig:"LUMEN_BILLING_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string        `envconfig:"LUMEN_BILLING_CHECKOUT_CANCEL_URL"`
	PortalReturnURL     string        `envconfig:"LUMEN_BILLING_PORTAL_RETURN_URL"`
	InvoiceListLimit    int           `envconfig:"LUMEN_BILLING_INVOICE_LIST_LIMIT" default:"12"`
	WebhookDedupeWindow time.Duration `envconfig:"LUMEN_BILLING_WEBHOOK_DEDUPE_WINDOW" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LUMEN_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	BillingTopic string `envconfig:"LUMEN_PUBSUB_BILLING_TOPIC" default:"lumen-billing-events"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LUMEN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
