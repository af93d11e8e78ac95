package config

const EnvPrefix = "LAUNDRYTRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	IsolationSerializable   = "serializable"
	IsolationRepeatableRead = "repeatable_read"
	IsolationDefault        = "default"
)

const (
	EnvAppEnv      = "LAUNDRYTRACK_APP_ENV"
	EnvLogLevel    = "LAUNDRYTRACK_LOG_LEVEL"
	EnvServiceKind = "LAUNDRYTRACK_SERVICE_KIND"

	EnvDBDSN       = "LAUNDRYTRACK_DB_DSN"
	EnvDBHost      = "LAUNDRYTRACK_DB_HOST"
	EnvDBPort      = "LAUNDRYTRACK_DB_PORT"
	EnvDBUser      = "LAUNDRYTRACK_DB_USER"
	EnvDBPassword  = "LAUNDRYTRACK_DB_PASSWORD"
	EnvDBName      = "LAUNDRYTRACK_DB_NAME"
	EnvDBIsolation = "LAUNDRYTRACK_DB_TX_ISOLATION"

	EnvRedisURL = "LAUNDRYTRACK_REDIS_URL"

	EnvLedgerCurrency    = "LAUNDRYTRACK_LEDGER_CURRENCY"
	EnvLedgerAutoAdvance = "LAUNDRYTRACK_LEDGER_AUTO_ADVANCE_ON_PAID"

	EnvTrackingMaxRetries = "LAUNDRYTRACK_TRACKING_MAX_CONFLICT_RETRIES"

	EnvGCPProjectID        = "LAUNDRYTRACK_GCP_PROJECT_ID"
	EnvPubSubOrderEvents   = "LAUNDRYTRACK_PUBSUB_ORDER_EVENTS_TOPIC"
	EnvPubSubPaymentEvents = "LAUNDRYTRACK_PUBSUB_PAYMENT_EVENTS_TOPIC"
	EnvOutboxBatchSize     = "LAUNDRYTRACK_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOpsPort             = "LAUNDRYTRACK_OPS_PORT"

	EnvCronSchedule        = "LAUNDRYTRACK_CRON_SCHEDULE"
	EnvCronInterval        = "LAUNDRYTRACK_CRON_INTERVAL"
	EnvCronOutboxRetention = "LAUNDRYTRACK_CRON_OUTBOX_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
