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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Tracking     TrackingConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Ops          OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.DB.validateIsolation(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LAUNDRYTRACK_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"LAUNDRYTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LAUNDRYTRACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LAUNDRYTRACK_SERVICE_KIND" default:"outbox-publisher"`
}

type DBConfig struct {
	DSN    string `envconfig:"LAUNDRYTRACK_DB_DSN"`
	Driver string `envconfig:"LAUNDRYTRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LAUNDRYTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"LAUNDRYTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LAUNDRYTRACK_DB_USER"`
	LegacyPassword string `envconfig:"LAUNDRYTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"LAUNDRYTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"LAUNDRYTRACK_DB_SSLMODE" default:"disable"`

	// Isolation is applied to every ledger and coordinator transaction.
	Isolation   string        `envconfig:"LAUNDRYTRACK_DB_TX_ISOLATION" default:"serializable"`
	LockTimeout time.Duration `envconfig:"LAUNDRYTRACK_DB_LOCK_TIMEOUT" default:"5s"`

	MaxOpenConns    int           `envconfig:"LAUNDRYTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LAUNDRYTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LAUNDRYTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LAUNDRYTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LAUNDRYTRACK_REDIS_URL"`
	Address      string        `envconfig:"LAUNDRYTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"LAUNDRYTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"LAUNDRYTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LAUNDRYTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LAUNDRYTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LAUNDRYTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LAUNDRYTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LAUNDRYTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LAUNDRYTRACK_AUTO_MIGRATE" default:"false"`
}

type LedgerConfig struct {
	Currency string `envconfig:"LAUNDRYTRACK_LEDGER_CURRENCY" default:"BHD"`
	// AmountScale is the number of minor-unit digits accepted on amounts.
	AmountScale int32 `envconfig:"LAUNDRYTRACK_LEDGER_AMOUNT_SCALE" default:"3"`
	// AutoAdvanceOnPaid lets the coordinator move PROCESSING_COMPLETED orders
	// into QUALITY_CHECK once they are fully paid.
	AutoAdvanceOnPaid bool `envconfig:"LAUNDRYTRACK_LEDGER_AUTO_ADVANCE_ON_PAID" default:"true"`
}

type TrackingConfig struct {
	MaxConflictRetries  uint64        `envconfig:"LAUNDRYTRACK_TRACKING_MAX_CONFLICT_RETRIES" default:"4"`
	ConflictBackoffBase time.Duration `envconfig:"LAUNDRYTRACK_TRACKING_CONFLICT_BACKOFF" default:"25ms"`
	ConflictBackoffCap  time.Duration `envconfig:"LAUNDRYTRACK_TRACKING_CONFLICT_BACKOFF_CAP" default:"500ms"`
	SettlementDedupeTTL time.Duration `envconfig:"LAUNDRYTRACK_TRACKING_SETTLEMENT_DEDUPE_TTL" default:"24h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"LAUNDRYTRACK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LAUNDRYTRACK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LAUNDRYTRACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LAUNDRYTRACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic   string `envconfig:"LAUNDRYTRACK_PUBSUB_ORDER_EVENTS_TOPIC" default:"lt-order-events"`
	PaymentEventsTopic string `envconfig:"LAUNDRYTRACK_PUBSUB_PAYMENT_EVENTS_TOPIC" default:"lt-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LAUNDRYTRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LAUNDRYTRACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LAUNDRYTRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	// Schedule is a standard five-field cron expression or descriptor such as
	// "@hourly". When empty the worker runs every Interval.
	Schedule string        `envconfig:"LAUNDRYTRACK_CRON_SCHEDULE"`
	Interval time.Duration `envconfig:"LAUNDRYTRACK_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"LAUNDRYTRACK_CRON_LOCK_TTL" default:"10m"`

	OutboxRetention   time.Duration `envconfig:"LAUNDRYTRACK_CRON_OUTBOX_RETENTION" default:"720h"`
	OutboxDeleteBatch int           `envconfig:"LAUNDRYTRACK_CRON_OUTBOX_DELETE_BATCH" default:"500"`

	// ReconcileLookback bounds which orders the payment sweep revisits: only
	// those with payment records touched inside the window.
	ReconcileLookback time.Duration `envconfig:"LAUNDRYTRACK_CRON_RECONCILE_LOOKBACK" default:"24h"`
	ReconcileBatch    int           `envconfig:"LAUNDRYTRACK_CRON_RECONCILE_BATCH" default:"200"`
}

type OpsConfig struct {
	Port string `envconfig:"LAUNDRYTRACK_OPS_PORT" default:"9090"`
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

func (db *DBConfig) validateIsolation() error {
	switch strings.ToLower(strings.TrimSpace(db.Isolation)) {
	case "", IsolationSerializable, IsolationRepeatableRead, IsolationDefault:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvDBIsolation, IsolationSerializable, IsolationRepeatableRead, IsolationDefault)
	}
}
