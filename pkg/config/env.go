package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Environment variable names referenced by helpers and tests.
const (
	EnvAppEnv   = "MARKETPLACE_APP_ENV"
	EnvPort     = "MARKETPLACE_APP_PORT"
	EnvLogLevel = "MARKETPLACE_LOG_LEVEL"

	EnvDBDSN    = "MARKETPLACE_DB_DSN"
	EnvDBDriver = "MARKETPLACE_DB_DRIVER"
	EnvDBHost   = "MARKETPLACE_DB_HOST"
	EnvDBUser   = "MARKETPLACE_DB_USER"
	EnvDBName   = "MARKETPLACE_DB_NAME"

	EnvRedisURL = "MARKETPLACE_REDIS_URL"

	EnvJWTSecret  = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer  = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins = "MARKETPLACE_JWT_EXPIRATION_MINUTES"

	EnvInventoryDefaultThreshold = "MARKETPLACE_INVENTORY_DEFAULT_LOW_STOCK_THRESHOLD"
	EnvInventoryStockCacheTTL    = "MARKETPLACE_INVENTORY_STOCK_CACHE_TTL"

	EnvGCPProjectID = "MARKETPLACE_GCP_PROJECT_ID"

	EnvPubSubInventoryTopic = "MARKETPLACE_PUBSUB_INVENTORY_TOPIC"
	EnvPubSubInventorySub   = "MARKETPLACE_PUBSUB_INVENTORY_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
