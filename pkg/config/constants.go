package config

const EnvPrefix = "FARMLANE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "FARMLANE_APP_ENV"
	EnvPort     = "FARMLANE_APP_PORT"
	EnvLogLevel = "FARMLANE_LOG_LEVEL"

	EnvDBDSN  = "FARMLANE_DB_DSN"
	EnvDBHost = "FARMLANE_DB_HOST"
	EnvDBUser = "FARMLANE_DB_USER"
	EnvDBName = "FARMLANE_DB_NAME"

	EnvRedisURL = "FARMLANE_REDIS_URL"

	EnvJWTSecret  = "FARMLANE_JWT_SECRET"
	EnvJWTIssuer  = "FARMLANE_JWT_ISSUER"
	EnvJWTExpMins = "FARMLANE_JWT_EXPIRATION_MINUTES"

	EnvPlatformFeeRate   = "FARMLANE_PLATFORM_FEE_RATE"
	EnvTaxRate           = "FARMLANE_TAX_RATE"
	EnvShippingFlatCents = "FARMLANE_SHIPPING_FLAT_CENTS"

	EnvNotificationsSink = "FARMLANE_NOTIFICATIONS_SINK"
	EnvKafkaBrokers      = "FARMLANE_KAFKA_BROKERS"

	EnvStripeAPIKey = "FARMLANE_STRIPE_API_KEY"
	EnvStripeSecret = "FARMLANE_STRIPE_SECRET"
)

const (
	NotificationSinkLog    = "log"
	NotificationSinkOutbox = "outbox"
	NotificationSinkKafka  = "kafka"
)
