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
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Event      EventConfig
	Dispatcher DispatcherConfig
	Sync       SyncConfig
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
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT verification settings
type JWTConfig struct {
	Secret string
	Issuer string
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
	MaxBodySize    int64
	TrustedProxies []string
}

// EventConfig holds event bus configuration
type EventConfig struct {
	IdempotencyTTL time.Duration
}

// DispatcherConfig holds webhook dispatcher configuration
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	AttemptTimeout time.Duration
	HistorySize    int
}

// SyncConfig holds sync scheduler configuration
type SyncConfig struct {
	Enabled       bool
	CycleTimeout  time.Duration
	RefreshPeriod time.Duration
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest): CARELINK_* env vars, config.toml, defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CARELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
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
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Event: EventConfig{
			IdempotencyTTL: v.GetDuration("event.idempotency_ttl"),
		},
		Dispatcher: DispatcherConfig{
			Workers:        v.GetInt("dispatcher.workers"),
			QueueSize:      v.GetInt("dispatcher.queue_size"),
			AttemptTimeout: v.GetDuration("dispatcher.attempt_timeout"),
			HistorySize:    v.GetInt("dispatcher.history_size"),
		},
		Sync: SyncConfig{
			Enabled:       v.GetBool("sync.enabled"),
			CycleTimeout:  v.GetDuration("sync.cycle_timeout"),
			RefreshPeriod: v.GetDuration("sync.refresh_period"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults establishes built-in defaults
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "carelink")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "carelink")
	v.SetDefault("database.dbname", "carelink")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "carelink")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)
	v.SetDefault("http.max_body_size", int64(1<<20))

	v.SetDefault("event.idempotency_ttl", 24*time.Hour)

	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.queue_size", 256)
	v.SetDefault("dispatcher.attempt_timeout", 10*time.Second)
	v.SetDefault("dispatcher.history_size", 100)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.cycle_timeout", 5*time.Minute)
	v.SetDefault("sync.refresh_period", time.Minute)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.App.Port == "" {
		return fmt.Errorf("app.port cannot be empty")
	}
	if c.App.Env == "production" && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be positive")
	}
	if c.Dispatcher.QueueSize <= 0 {
		return fmt.Errorf("dispatcher.queue_size must be positive")
	}
	if c.Dispatcher.AttemptTimeout <= 0 {
		return fmt.Errorf("dispatcher.attempt_timeout must be positive")
	}
	if c.Sync.CycleTimeout <= 0 {
		return fmt.Errorf("sync.cycle_timeout must be positive")
	}
	return nil
}

// DSN returns the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, url.QueryEscape(c.Password), c.DBName, c.SSLMode,
	)
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
