package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	Event          EventConfig
	HTTP           HTTPConfig
	Scheduler      SchedulerConfig
	Reconciliation ReconciliationConfig
	Provider       ProviderConfig
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
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds event bus configuration
type EventConfig struct {
	BufferSize int
	DedupTTL   time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// SchedulerConfig holds recurring-donation scheduler configuration
type SchedulerConfig struct {
	Enabled       bool
	TickInterval  time.Duration
	BatchSize     int
	SweepEnabled  bool
	SweepInterval time.Duration
}

// ReconciliationConfig holds reconciliation poller configuration
type ReconciliationConfig struct {
	Enabled        bool
	PollInterval   time.Duration
	StuckThreshold time.Duration
	BatchSize      int
}

// ProviderConfig holds per-rail provider settings
type ProviderConfig struct {
	Card   CardProviderConfig
	Bank   HTTPProviderConfig
	Crypto CryptoProviderConfig
	// CallTimeout bounds every outbound provider call
	CallTimeout time.Duration
}

// CardProviderConfig holds card rail (Stripe) settings
type CardProviderConfig struct {
	APIKey        string
	WebhookSecret string
}

// HTTPProviderConfig holds the signed JSON-over-HTTP rail settings
type HTTPProviderConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string
}

// CryptoProviderConfig holds crypto rail settings
type CryptoProviderConfig struct {
	HTTPProviderConfig `mapstructure:",squash"`
	// ConfirmationThreshold is how many chain confirmations settle a payment
	ConfirmationThreshold int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with GIVEFLOW_ prefix (e.g., GIVEFLOW_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("GIVEFLOW")
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
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			BufferSize: v.GetInt("event.buffer_size"),
			DedupTTL:   v.GetDuration("event.dedup_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			TickInterval:  v.GetDuration("scheduler.tick_interval"),
			BatchSize:     v.GetInt("scheduler.batch_size"),
			SweepEnabled:  v.GetBool("scheduler.sweep_enabled"),
			SweepInterval: v.GetDuration("scheduler.sweep_interval"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:        v.GetBool("reconciliation.enabled"),
			PollInterval:   v.GetDuration("reconciliation.poll_interval"),
			StuckThreshold: v.GetDuration("reconciliation.stuck_threshold"),
			BatchSize:      v.GetInt("reconciliation.batch_size"),
		},
		Provider: ProviderConfig{
			Card: CardProviderConfig{
				APIKey:        v.GetString("provider.card.api_key"),
				WebhookSecret: v.GetString("provider.card.webhook_secret"),
			},
			Bank: HTTPProviderConfig{
				BaseURL:   v.GetString("provider.bank.base_url"),
				APIKey:    v.GetString("provider.bank.api_key"),
				SecretKey: v.GetString("provider.bank.secret_key"),
			},
			Crypto: CryptoProviderConfig{
				HTTPProviderConfig: HTTPProviderConfig{
					BaseURL:   v.GetString("provider.crypto.base_url"),
					APIKey:    v.GetString("provider.crypto.api_key"),
					SecretKey: v.GetString("provider.crypto.secret_key"),
				},
				ConfirmationThreshold: v.GetInt("provider.crypto.confirmation_threshold"),
			},
			CallTimeout: v.GetDuration("provider.call_timeout"),
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
		cfg.App.Name = "giveflow-backend"
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
		cfg.Database.DBName = "giveflow"
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
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BufferSize == 0 {
		cfg.Event.BufferSize = 256
	}
	if cfg.Event.DedupTTL == 0 {
		cfg.Event.DedupTTL = 24 * time.Hour
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
		cfg.HTTP.MaxBodySize = 1 << 20 // webhooks are small
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Minute
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = 10 * time.Minute
	}
	if cfg.Reconciliation.PollInterval == 0 {
		cfg.Reconciliation.PollInterval = 5 * time.Minute
	}
	if cfg.Reconciliation.StuckThreshold == 0 {
		cfg.Reconciliation.StuckThreshold = 15 * time.Minute
	}
	if cfg.Reconciliation.BatchSize == 0 {
		cfg.Reconciliation.BatchSize = 50
	}
	if cfg.Provider.Crypto.ConfirmationThreshold == 0 {
		cfg.Provider.Crypto.ConfirmationThreshold = 6
	}
	if cfg.Provider.CallTimeout == 0 {
		cfg.Provider.CallTimeout = 30 * time.Second
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
	if c.Reconciliation.StuckThreshold < c.Reconciliation.PollInterval {
		return fmt.Errorf("reconciliation.stuck_threshold (%s) cannot be shorter than reconciliation.poll_interval (%s)",
			c.Reconciliation.StuckThreshold, c.Reconciliation.PollInterval)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Provider.Card.WebhookSecret == "" {
			return fmt.Errorf("provider.card.webhook_secret is required in production")
		}
		if c.Provider.Bank.SecretKey == "" {
			return fmt.Errorf("provider.bank.secret_key is required in production")
		}
		if c.Provider.Crypto.SecretKey == "" {
			return fmt.Errorf("provider.crypto.secret_key is required in production")
		}
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

// Addr returns the host:port address for Redis
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
