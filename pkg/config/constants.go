package config

const (
	EnvPrefix = "KOIPOND"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "KOIPOND_APP_ENV"
	EnvPort     = "KOIPOND_APP_PORT"
	EnvLogLevel = "KOIPOND_LOG_LEVEL"
	EnvCORS     = "KOIPOND_CORS_ALLOWED_ORIGINS"

	EnvWorkerMetricsAddr = "KOIPOND_WORKER_METRICS_ADDR"

	EnvDBDSN    = "KOIPOND_DB_DSN"
	EnvDBDriver = "KOIPOND_DB_DRIVER"
	EnvDBHost   = "KOIPOND_DB_HOST"
	EnvDBUser   = "KOIPOND_DB_USER"
	EnvDBName   = "KOIPOND_DB_NAME"

	EnvRedisURL = "KOIPOND_REDIS_URL"

	EnvJWTSecret = "KOIPOND_JWT_SECRET"
	EnvJWTIssuer = "KOIPOND_JWT_ISSUER"

	EnvShippingBaseURL      = "KOIPOND_SHIPPING_BASE_URL"
	EnvShippingToken        = "KOIPOND_SHIPPING_TOKEN"
	EnvShippingQuoteTimeout = "KOIPOND_SHIPPING_QUOTE_TIMEOUT"

	EnvRevenuePlatformFee = "KOIPOND_REVENUE_PLATFORM_FEE_RATE"

	EnvGCPProjectID       = "KOIPOND_GCP_PROJECT_ID"
	EnvPubSubEventsTopic  = "KOIPOND_PUBSUB_EVENTS_TOPIC"
	EnvOutboxBatchSize    = "KOIPOND_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvFeatureAutoMigrate = "KOIPOND_AUTO_MIGRATE"

	EnvPendingOrderTTL = "KOIPOND_PENDING_ORDER_TTL"
	EnvSystemActorID   = "KOIPOND_SYSTEM_ACTOR_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
