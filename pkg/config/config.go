package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Stripe        StripeConfig
	Kafka         KafkaConfig
	Pricing       PricingConfig
	Notifications NotificationsConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Webhooks      WebhooksConfig
}

// Load reads FARMLANE_* variables. Once parsing succeeds every section is
// checked and all problems come back together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.resolveDSN(),
		cfg.Pricing.validate(),
		cfg.Notifications.validate(cfg.Kafka),
		cfg.Outbox.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"FARMLANE_APP_ENV" required:"true"`
	Port           string   `envconfig:"FARMLANE_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"FARMLANE_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"FARMLANE_LOG_WARN_STACK" default:"false"`
	BaseURL        string   `envconfig:"FARMLANE_APP_BASE_URL" default:"http://localhost:8080"`
	AllowedOrigins []string `envconfig:"FARMLANE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMLANE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMLANE_DB_DSN"`
	Driver string `envconfig:"FARMLANE_DB_DRIVER" default:"postgres"`

	// Discrete Postgres settings, used only when DSN is empty.
	Host     string `envconfig:"FARMLANE_DB_HOST"`
	Port     int    `envconfig:"FARMLANE_DB_PORT" default:"5432"`
	User     string `envconfig:"FARMLANE_DB_USER"`
	Password string `envconfig:"FARMLANE_DB_PASSWORD"`
	Name     string `envconfig:"FARMLANE_DB_NAME"`
	SSLMode  string `envconfig:"FARMLANE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMLANE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMLANE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMLANE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMLANE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FARMLANE_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMLANE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMLANE_REDIS_ADDR"`
	Password     string        `envconfig:"FARMLANE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMLANE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMLANE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMLANE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMLANE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMLANE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMLANE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMLANE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMLANE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMLANE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARMLANE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FARMLANE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"FARMLANE_PUBSUB_NOTIFICATION_TOPIC" default:"farmlane-order-notifications"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"FARMLANE_STRIPE_API_KEY"`
	Secret     string `envconfig:"FARMLANE_STRIPE_SECRET"`
	Env        string `envconfig:"FARMLANE_STRIPE_ENV" default:"test"`
	Currency   string `envconfig:"FARMLANE_STRIPE_CURRENCY" default:"usd"`
	SuccessURL string `envconfig:"FARMLANE_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"FARMLANE_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type KafkaConfig struct {
	Brokers           []string `envconfig:"FARMLANE_KAFKA_BROKERS"`
	NotificationTopic string   `envconfig:"FARMLANE_KAFKA_NOTIFICATION_TOPIC" default:"farmlane.order-notifications"`
	ClientID          string   `envconfig:"FARMLANE_KAFKA_CLIENT_ID" default:"farmlane-api"`
}

// PricingConfig holds the marketplace fee schedule. Rates are decimal fractions ("0.08" = 8%).
type PricingConfig struct {
	PlatformFeeRate   string `envconfig:"FARMLANE_PLATFORM_FEE_RATE" default:"0.08"`
	TaxRate           string `envconfig:"FARMLANE_TAX_RATE" default:"0"`
	ShippingFlatCents int64  `envconfig:"FARMLANE_SHIPPING_FLAT_CENTS" default:"0"`
}

// PlatformFee returns the parsed platform fee rate.
func (p PricingConfig) PlatformFee() decimal.Decimal {
	return parseRate(p.PlatformFeeRate)
}

// Tax returns the parsed tax rate.
func (p PricingConfig) Tax() decimal.Decimal {
	return parseRate(p.TaxRate)
}

func (p PricingConfig) validate() error {
	for name, raw := range map[string]string{EnvPlatformFeeRate: p.PlatformFeeRate, EnvTaxRate: p.TaxRate} {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be a decimal: %w", name, err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be within [0, 1)", name)
		}
	}
	if p.ShippingFlatCents < 0 {
		return fmt.Errorf("%s must not be negative", EnvShippingFlatCents)
	}
	return nil
}

func parseRate(raw string) decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

type NotificationsConfig struct {
	Sink        string        `envconfig:"FARMLANE_NOTIFICATIONS_SINK" default:"log"`
	SendTimeout time.Duration `envconfig:"FARMLANE_NOTIFICATIONS_SEND_TIMEOUT" default:"5s"`
}

func (n NotificationsConfig) validate(kafka KafkaConfig) error {
	if n.SendTimeout <= 0 {
		return fmt.Errorf("FARMLANE_NOTIFICATIONS_SEND_TIMEOUT must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(n.Sink)) {
	case NotificationSinkLog, NotificationSinkOutbox:
		return nil
	case NotificationSinkKafka:
		if len(kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required when %s=%s", EnvKafkaBrokers, EnvNotificationsSink, NotificationSinkKafka)
		}
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvNotificationsSink, NotificationSinkLog, NotificationSinkOutbox, NotificationSinkKafka)
	}
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMLANE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMLANE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMLANE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FARMLANE_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) validate() error {
	if o.BatchSize <= 0 || o.MaxAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be positive")
	}
	if o.RetentionDays < 1 {
		return fmt.Errorf("FARMLANE_OUTBOX_RETENTION_DAYS must be at least 1")
	}
	return nil
}

type CronConfig struct {
	Interval                time.Duration `envconfig:"FARMLANE_CRON_INTERVAL" default:"1h"`
	CancellationRequestSLA  time.Duration `envconfig:"FARMLANE_CRON_CANCELLATION_SLA" default:"48h"`
	InventoryAuditBatchSize int           `envconfig:"FARMLANE_CRON_AUDIT_BATCH_SIZE" default:"200"`
	LockTTL                 time.Duration `envconfig:"FARMLANE_CRON_LOCK_TTL" default:"2h"`
}

func (c CronConfig) validate() error {
	if c.Interval <= 0 || c.LockTTL <= 0 {
		return fmt.Errorf("FARMLANE_CRON_INTERVAL and FARMLANE_CRON_LOCK_TTL must be positive")
	}
	return nil
}

type WebhooksConfig struct {
	InFlightTTL time.Duration `envconfig:"FARMLANE_WEBHOOK_INFLIGHT_TTL" default:"2m"`
}

// resolveDSN assembles a Postgres URL from the discrete settings when no
// DSN was given. SQLite always needs an explicit DSN.
func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
