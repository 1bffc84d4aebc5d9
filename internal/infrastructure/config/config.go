package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Vendor      VendorConfig
	Report      ReportConfig
	Sync        SyncConfig
	Scheduler   SchedulerConfig
	Cron        CronConfig
	AMQP        AMQPConfig
	Telemetry   TelemetryConfig
	Analytics   AnalyticsConfig
	Fulfillment FulfillmentConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string `validate:"oneof=development testing staging production"`
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string `validate:"oneof=postgres sqlite"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path, ":memory:" allowed
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// SyncWallClock bounds a synchronous historical sync request. When it
	// elapses the run is left running with its checkpoint.
	SyncWallClock  time.Duration
	TrustedProxies []string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig holds the raw report archive settings
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// VendorConfig holds Selling Partner API credentials and limits
type VendorConfig struct {
	Endpoint          string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	MarketplaceID     string
	TimeoutSeconds    int
	RequestsPerSecond float64
	Burst             int
}

// Configured reports whether credentials are present
func (v *VendorConfig) Configured() bool {
	return v.ClientID != "" && v.ClientSecret != "" && v.RefreshToken != ""
}

// ReportConfig holds report polling settings
type ReportConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int `validate:"gte=1"`
	// FallbackTypes are tried in order when the primary report type is
	// cancelled or fatal.
	FallbackTypes []string
	ArchiveRaw    bool
}

// SyncConfig holds sync pipeline settings
type SyncConfig struct {
	TotalDays           int `validate:"gte=1"`
	BatchSizeDays       int `validate:"gte=1"`
	InterBatchDelay     time.Duration
	WindowDays          int `validate:"gte=1"`
	FlushEveryKeys      int `validate:"gte=1"`
	RateLimitWait       time.Duration
	MaxRateLimitRetries int
	IncrementalLookback time.Duration
}

// SchedulerConfig holds job queue configuration
type SchedulerConfig struct {
	Enabled       bool
	Workers       int `validate:"gte=1"`
	RetryAttempts int `validate:"gte=1"`
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	JobTimeout    time.Duration
	Transport     string `validate:"oneof=memory amqp"`
	PollInterval  time.Duration
	RunLockTTL    time.Duration
	QueueSize     int
}

// CronConfig holds cron expressions per job type; an empty expression
// disables the trigger.
type CronConfig struct {
	Enabled          bool
	OrdersSync       string
	FinancesSync     string
	ShipmentsSync    string
	InventorySync    string
	ReturnsSync      string
	ProfitRebuild    string
	ShipmentsPurge   string
	ProfitExport     string
	TimeZone         string
	HistoricalOnBoot bool
}

// AMQPConfig holds RabbitMQ settings for job dispatch
type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// TelemetryConfig holds OpenTelemetry configuration. Enabled turns on
// metrics export; traces and logs each have their own switch and share the
// collector endpoint.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	TracesEnabled     bool
	SamplingRatio     float64 `validate:"gte=0,lte=1"`
	DBTracing         bool
	LogsEnabled       bool
}

// AnalyticsConfig holds the ClickHouse export settings
type AnalyticsConfig struct {
	Enabled  bool
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

// FulfillmentConfig holds FBA reconciliation settings
type FulfillmentConfig struct {
	DefaultWarehouseID string
	Retention          time.Duration
	ShipmentLookback   time.Duration
}

// Load loads configuration from .env, config file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SELLERSYNC_ prefix (e.g., SELLERSYNC_VENDOR_CLIENT_ID)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

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

	v.SetEnvPrefix("SELLERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     !v.IsSet("database.auto_migrate") || v.GetBool("database.auto_migrate"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			SyncWallClock:  v.GetDuration("http.sync_wall_clock"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			Prefix:          v.GetString("storage.prefix"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Vendor: VendorConfig{
			Endpoint:          v.GetString("vendor.endpoint"),
			TokenURL:          v.GetString("vendor.token_url"),
			ClientID:          v.GetString("vendor.client_id"),
			ClientSecret:      v.GetString("vendor.client_secret"),
			RefreshToken:      v.GetString("vendor.refresh_token"),
			MarketplaceID:     v.GetString("vendor.marketplace_id"),
			TimeoutSeconds:    v.GetInt("vendor.timeout_seconds"),
			RequestsPerSecond: v.GetFloat64("vendor.requests_per_second"),
			Burst:             v.GetInt("vendor.burst"),
		},
		Report: ReportConfig{
			PollInterval:    v.GetDuration("report.poll_interval"),
			MaxPollAttempts: v.GetInt("report.max_poll_attempts"),
			FallbackTypes:   v.GetStringSlice("report.fallback_types"),
			ArchiveRaw:      v.GetBool("report.archive_raw"),
		},
		Sync: SyncConfig{
			TotalDays:           v.GetInt("sync.total_days"),
			BatchSizeDays:       v.GetInt("sync.batch_size_days"),
			InterBatchDelay:     v.GetDuration("sync.inter_batch_delay"),
			WindowDays:          v.GetInt("sync.window_days"),
			FlushEveryKeys:      v.GetInt("sync.flush_every_keys"),
			RateLimitWait:       v.GetDuration("sync.rate_limit_wait"),
			MaxRateLimitRetries: v.GetInt("sync.max_rate_limit_retries"),
			IncrementalLookback: v.GetDuration("sync.incremental_lookback"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Workers:       v.GetInt("scheduler.workers"),
			RetryAttempts: v.GetInt("scheduler.retry_attempts"),
			RetryDelay:    v.GetDuration("scheduler.retry_delay"),
			MaxRetryDelay: v.GetDuration("scheduler.max_retry_delay"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			Transport:     v.GetString("scheduler.transport"),
			PollInterval:  v.GetDuration("scheduler.poll_interval"),
			RunLockTTL:    v.GetDuration("scheduler.run_lock_ttl"),
			QueueSize:     v.GetInt("scheduler.queue_size"),
		},
		Cron: CronConfig{
			Enabled:          v.GetBool("cron.enabled"),
			OrdersSync:       v.GetString("cron.orders_sync"),
			FinancesSync:     v.GetString("cron.finances_sync"),
			ShipmentsSync:    v.GetString("cron.shipments_sync"),
			InventorySync:    v.GetString("cron.inventory_sync"),
			ReturnsSync:      v.GetString("cron.returns_sync"),
			ProfitRebuild:    v.GetString("cron.profit_rebuild"),
			ShipmentsPurge:   v.GetString("cron.shipments_purge"),
			ProfitExport:     v.GetString("cron.profit_export"),
			TimeZone:         v.GetString("cron.time_zone"),
			HistoricalOnBoot: v.GetBool("cron.historical_on_boot"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp.url"),
			Exchange: v.GetString("amqp.exchange"),
			Queue:    v.GetString("amqp.queue"),
			Prefetch: v.GetInt("amqp.prefetch"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			TracesEnabled:     v.GetBool("telemetry.traces_enabled"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Analytics: AnalyticsConfig{
			Enabled:  v.GetBool("analytics.enabled"),
			Addr:     v.GetStringSlice("analytics.addr"),
			Database: v.GetString("analytics.database"),
			Username: v.GetString("analytics.username"),
			Password: v.GetString("analytics.password"),
			Table:    v.GetString("analytics.table"),
		},
		Fulfillment: FulfillmentConfig{
			DefaultWarehouseID: v.GetString("fulfillment.default_warehouse_id"),
			Retention:          v.GetDuration("fulfillment.retention"),
			ShipmentLookback:   v.GetDuration("fulfillment.shipment_lookback"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sellersync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
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
		cfg.Database.DBName = "sellersync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "sellersync.db"
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
		cfg.Database.ConnMaxIdleTime = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.App.Env == "production" {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Synchronous sync requests hold the connection for up to the wall clock.
		cfg.HTTP.WriteTimeout = 6 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 120 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.SyncWallClock == 0 {
		cfg.HTTP.SyncWallClock = 5 * time.Minute
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "reports"
	}

	if cfg.Vendor.Endpoint == "" {
		cfg.Vendor.Endpoint = "https://sellingpartnerapi-na.amazon.com"
	}
	if cfg.Vendor.TokenURL == "" {
		cfg.Vendor.TokenURL = "https://api.amazon.com/auth/o2/token"
	}
	if cfg.Vendor.MarketplaceID == "" {
		cfg.Vendor.MarketplaceID = "ATVPDKIKX0DER"
	}
	if cfg.Vendor.TimeoutSeconds == 0 {
		cfg.Vendor.TimeoutSeconds = 60
	}
	if cfg.Vendor.RequestsPerSecond == 0 {
		cfg.Vendor.RequestsPerSecond = 0.5
	}
	if cfg.Vendor.Burst == 0 {
		cfg.Vendor.Burst = 5
	}

	if cfg.Report.PollInterval == 0 {
		cfg.Report.PollInterval = 30 * time.Second
	}
	if cfg.Report.MaxPollAttempts == 0 {
		cfg.Report.MaxPollAttempts = 1440
	}
	if len(cfg.Report.FallbackTypes) == 0 {
		cfg.Report.FallbackTypes = []string{"GET_FLAT_FILE_ALL_ORDERS_DATA_BY_LAST_UPDATE_GENERAL"}
	}

	if cfg.Sync.TotalDays == 0 {
		cfg.Sync.TotalDays = 730
	}
	if cfg.Sync.BatchSizeDays == 0 {
		cfg.Sync.BatchSizeDays = 30
	}
	if cfg.Sync.InterBatchDelay == 0 {
		cfg.Sync.InterBatchDelay = 2 * time.Second
	}
	if cfg.Sync.WindowDays == 0 {
		cfg.Sync.WindowDays = 30
	}
	if cfg.Sync.FlushEveryKeys == 0 {
		cfg.Sync.FlushEveryKeys = 500
	}
	if cfg.Sync.RateLimitWait == 0 {
		cfg.Sync.RateLimitWait = 60 * time.Second
	}
	if cfg.Sync.MaxRateLimitRetries == 0 {
		cfg.Sync.MaxRateLimitRetries = 5
	}
	if cfg.Sync.IncrementalLookback == 0 {
		cfg.Sync.IncrementalLookback = 48 * time.Hour
	}

	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 3
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 30 * time.Second
	}
	if cfg.Scheduler.MaxRetryDelay == 0 {
		cfg.Scheduler.MaxRetryDelay = 30 * time.Minute
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 12 * time.Hour
	}
	if cfg.Scheduler.Transport == "" {
		cfg.Scheduler.Transport = "memory"
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 15 * time.Second
	}
	if cfg.Scheduler.RunLockTTL == 0 {
		cfg.Scheduler.RunLockTTL = 13 * time.Hour
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 256
	}

	if cfg.Cron.TimeZone == "" {
		cfg.Cron.TimeZone = "UTC"
	}

	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "sellersync"
	}
	if cfg.AMQP.Queue == "" {
		cfg.AMQP.Queue = "sellersync.jobs"
	}
	if cfg.AMQP.Prefetch == 0 {
		cfg.AMQP.Prefetch = 4
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sellersync"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.TracesEnabled && cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1
	}

	if cfg.Analytics.Database == "" {
		cfg.Analytics.Database = "default"
	}
	if cfg.Analytics.Table == "" {
		cfg.Analytics.Table = "daily_profits"
	}

	if cfg.Fulfillment.Retention == 0 {
		cfg.Fulfillment.Retention = 180 * 24 * time.Hour
	}
	if cfg.Fulfillment.ShipmentLookback == 0 {
		cfg.Fulfillment.ShipmentLookback = 30 * 24 * time.Hour
	}
}

var validate = validator.New()

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config %s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

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

	if c.Sync.BatchSizeDays > c.Sync.TotalDays {
		return fmt.Errorf("sync.batch_size_days (%d) cannot exceed sync.total_days (%d)",
			c.Sync.BatchSizeDays, c.Sync.TotalDays)
	}
	if c.Scheduler.MaxRetryDelay < c.Scheduler.RetryDelay {
		return fmt.Errorf("scheduler.max_retry_delay cannot be shorter than scheduler.retry_delay")
	}
	if c.Scheduler.Transport == "amqp" && c.AMQP.URL == "" {
		return fmt.Errorf("amqp.url is required when scheduler.transport is amqp")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if c.Analytics.Enabled && len(c.Analytics.Addr) == 0 {
		return fmt.Errorf("analytics.addr is required when analytics is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver cannot be sqlite in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if !c.Vendor.Configured() {
			return fmt.Errorf("vendor credentials are required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
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
