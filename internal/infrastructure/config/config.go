package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Event     EventConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
	Ledger    LedgerConfig
	Gateway   GatewayConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// MigrateOnStart applies pending embedded migrations before serving
	MigrateOnStart bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Required fails startup instead of falling back to the in-memory store
	Required bool
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
	// AdminCapabilityTTL bounds how long an issued admin capability is honoured
	AdminCapabilityTTL time.Duration
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	IdempotencyTTL   time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Enabled             bool
	VestingInterval     time.Duration // how often the vesting sweep runs
	VestingBatchSize    int
	ReconcileInterval   time.Duration // how often stale references are refreshed
	ReconcileBatchSize  int
	MetricsInterval     time.Duration
	JobTimeout          time.Duration
	MaxConcurrentJobs   int
	ShutdownGracePeriod time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Export zap logs over OTLP
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool
	DBLogFullSQL      bool // dev only
	DBSlowQueryThresh time.Duration
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	SpanProfiles      bool
}

// LedgerConfig holds the presale business parameters
type LedgerConfig struct {
	TokenPrice decimal.Decimal
	// YieldRatePerMonth is the fraction of the purchased balance accrued per 30 days
	YieldRatePerMonth  decimal.Decimal
	MaxYieldWindow     time.Duration
	MinActiveReferrals int
	MinAccountAge      time.Duration
	ContributionRates  []decimal.Decimal // levels 1..3
	GamesRates         []decimal.Decimal // levels 1..3
	VestingPercentage  decimal.Decimal
	VestingInterval    time.Duration
	MaxCreditAttempts  int
	OrderIDPrefix      string
	StaleAfter         time.Duration // non-terminal references older than this are re-polled
}

// GatewayConfig holds the hosted payment gateway client settings
type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	IPNSecret   string
	CallbackURL string
	SuccessURL  string
	CancelURL   string
	Timeout     time.Duration
	MaxRetries  uint64
}

// KafkaConfig holds change notification publisher settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// StorageConfig holds the S3 compatible bucket used for verification proofs
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
	KeyPrefix       string
}

// Load loads configuration from a .env file, TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MXI_ prefix (e.g., MXI_DATABASE_PASSWORD)
// 2. .env (only sets variables that are not already present)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MXI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Required: v.GetBool("redis.required"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
			AdminCapabilityTTL:    v.GetDuration("jwt.admin_capability_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             v.GetBool("scheduler.enabled"),
			VestingInterval:     v.GetDuration("scheduler.vesting_interval"),
			VestingBatchSize:    v.GetInt("scheduler.vesting_batch_size"),
			ReconcileInterval:   v.GetDuration("scheduler.reconcile_interval"),
			ReconcileBatchSize:  v.GetInt("scheduler.reconcile_batch_size"),
			MetricsInterval:     v.GetDuration("scheduler.metrics_interval"),
			JobTimeout:          v.GetDuration("scheduler.job_timeout"),
			MaxConcurrentJobs:   v.GetInt("scheduler.max_concurrent_jobs"),
			ShutdownGracePeriod: v.GetDuration("scheduler.shutdown_grace_period"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
		Ledger: LedgerConfig{
			MaxYieldWindow:     v.GetDuration("ledger.max_yield_window"),
			MinActiveReferrals: v.GetInt("ledger.min_active_referrals"),
			MinAccountAge:      v.GetDuration("ledger.min_account_age"),
			VestingInterval:    v.GetDuration("ledger.vesting_interval"),
			MaxCreditAttempts:  v.GetInt("ledger.max_credit_attempts"),
			OrderIDPrefix:      v.GetString("ledger.order_id_prefix"),
			StaleAfter:         v.GetDuration("ledger.stale_after"),
		},
		Gateway: GatewayConfig{
			BaseURL:     v.GetString("gateway.base_url"),
			APIKey:      v.GetString("gateway.api_key"),
			IPNSecret:   v.GetString("gateway.ipn_secret"),
			CallbackURL: v.GetString("gateway.callback_url"),
			SuccessURL:  v.GetString("gateway.success_url"),
			CancelURL:   v.GetString("gateway.cancel_url"),
			Timeout:     v.GetDuration("gateway.timeout"),
			MaxRetries:  v.GetUint64("gateway.max_retries"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
			KeyPrefix:       v.GetString("storage.key_prefix"),
		},
	}

	if err := loadLedgerAmounts(v, &cfg.Ledger); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadLedgerAmounts parses the decimal valued ledger settings. Amounts are
// read as strings so that no value ever passes through a float.
func loadLedgerAmounts(v *viper.Viper, l *LedgerConfig) error {
	var err error
	if l.TokenPrice, err = optionalDecimal(v, "ledger.token_price"); err != nil {
		return err
	}
	if l.YieldRatePerMonth, err = optionalDecimal(v, "ledger.yield_rate_per_month"); err != nil {
		return err
	}
	if l.VestingPercentage, err = optionalDecimal(v, "ledger.vesting_percentage"); err != nil {
		return err
	}
	if l.ContributionRates, err = decimalList(v, "ledger.contribution_rates"); err != nil {
		return err
	}
	if l.GamesRates, err = decimalList(v, "ledger.games_rates"); err != nil {
		return err
	}
	return nil
}

func optionalDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
	}
	return d, nil
}

func decimalList(v *viper.Viper, key string) ([]decimal.Decimal, error) {
	raw := v.GetStringSlice(key)
	// env vars arrive as one comma separated string
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}
	out := make([]decimal.Decimal, 0, len(raw))
	for _, r := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid decimal %q: %w", key, r, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mxi-presale"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "mxi"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "mxi-presale"
	}
	if cfg.JWT.AdminCapabilityTTL == 0 {
		cfg.JWT.AdminCapabilityTTL = 5 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, proofs go straight to object storage
	}
	if cfg.HTTP.RateLimitRequests <= 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow <= 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// No default CORS origin: cross-origin requests stay blocked until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Scheduler.VestingInterval == 0 {
		cfg.Scheduler.VestingInterval = time.Hour
	}
	if cfg.Scheduler.VestingBatchSize == 0 {
		cfg.Scheduler.VestingBatchSize = 200
	}
	if cfg.Scheduler.ReconcileInterval == 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Scheduler.ReconcileBatchSize == 0 {
		cfg.Scheduler.ReconcileBatchSize = 50
	}
	if cfg.Scheduler.MetricsInterval == 0 {
		cfg.Scheduler.MetricsInterval = time.Minute
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 5 * time.Minute
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.ShutdownGracePeriod == 0 {
		cfg.Scheduler.ShutdownGracePeriod = 30 * time.Second
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "mxi-presale"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}

	// Ledger defaults mirror the presale terms
	if cfg.Ledger.TokenPrice.IsZero() {
		cfg.Ledger.TokenPrice = decimal.RequireFromString("0.40")
	}
	if cfg.Ledger.YieldRatePerMonth.IsZero() {
		cfg.Ledger.YieldRatePerMonth = decimal.RequireFromString("0.03")
	}
	if cfg.Ledger.MaxYieldWindow == 0 {
		cfg.Ledger.MaxYieldWindow = 5 * 365 * 24 * time.Hour
	}
	if cfg.Ledger.MinActiveReferrals == 0 {
		cfg.Ledger.MinActiveReferrals = 5
	}
	if cfg.Ledger.MinAccountAge == 0 {
		cfg.Ledger.MinAccountAge = 10 * 24 * time.Hour
	}
	if len(cfg.Ledger.ContributionRates) == 0 {
		cfg.Ledger.ContributionRates = []decimal.Decimal{
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
			decimal.RequireFromString("0.01"),
		}
	}
	if len(cfg.Ledger.GamesRates) == 0 {
		cfg.Ledger.GamesRates = []decimal.Decimal{
			decimal.RequireFromString("0.03"),
			decimal.RequireFromString("0.02"),
			decimal.RequireFromString("0.01"),
		}
	}
	if cfg.Ledger.VestingPercentage.IsZero() {
		cfg.Ledger.VestingPercentage = decimal.RequireFromString("0.10")
	}
	if cfg.Ledger.VestingInterval == 0 {
		cfg.Ledger.VestingInterval = 10 * 24 * time.Hour
	}
	if cfg.Ledger.MaxCreditAttempts == 0 {
		cfg.Ledger.MaxCreditAttempts = 3
	}
	if cfg.Ledger.OrderIDPrefix == "" {
		cfg.Ledger.OrderIDPrefix = "MXI-"
	}
	if cfg.Ledger.StaleAfter == 0 {
		cfg.Ledger.StaleAfter = 30 * time.Minute
	}

	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.nowpayments.io/v1"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Gateway.MaxRetries == 0 {
		cfg.Gateway.MaxRetries = 3
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "mxi.ledger.changes"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "verification-proofs/"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Gateway.IPNSecret == "" {
			return fmt.Errorf("gateway.ipn_secret is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if len(c.Ledger.ContributionRates) != 3 || len(c.Ledger.GamesRates) != 3 {
		return fmt.Errorf("ledger commission rates must list exactly three levels")
	}
	if !c.Ledger.TokenPrice.IsPositive() {
		return fmt.Errorf("ledger.token_price must be positive")
	}
	if c.Ledger.VestingPercentage.LessThanOrEqual(decimal.Zero) || c.Ledger.VestingPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("ledger.vesting_percentage must be in (0, 1], got %s", c.Ledger.VestingPercentage)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
