// Package config loads application configuration from a TOML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Stock    StockConfig
	Log      LogConfig
	HTTP     HTTPConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string
	Env  string // development, production
	Port string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN builds the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings. Redis is optional: with
// Enabled false, catalog lookups go straight to the database.
type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	CatalogTTL time.Duration
}

// StockConfig holds stock deduction policy settings.
type StockConfig struct {
	// Mode is "best_effort" (ledger save failures during a sale are
	// logged and tolerated) or "strict" (a save failure aborts the
	// deduction). Neither mode rejects a sale over a stock shortfall;
	// shortfalls are always recorded as warnings.
	Mode       string
	MaxRetries int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load loads configuration with the following priority (highest first):
// environment variables with VENUEPOS_ prefix, config.toml, built-in
// defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/venuepos")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	v.SetEnvPrefix("VENUEPOS")
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
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: int32(v.GetInt("database.max_conns")),
			MinConns: int32(v.GetInt("database.min_conns")),
		},
		Redis: RedisConfig{
			Enabled:    v.GetBool("redis.enabled"),
			Host:       v.GetString("redis.host"),
			Port:       v.GetInt("redis.port"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			CatalogTTL: v.GetDuration("redis.catalog_ttl"),
		},
		Stock: StockConfig{
			Mode:       v.GetString("stock.mode"),
			MaxRetries: v.GetInt("stock.max_retries"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "venuepos")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "venuepos")
	v.SetDefault("database.dbname", "venuepos")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.catalog_ttl", 5*time.Minute)

	v.SetDefault("stock.mode", "best_effort")
	v.SetDefault("stock.max_retries", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 2*time.Minute)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
}

func (c *Config) validate() error {
	switch c.Stock.Mode {
	case "best_effort", "strict":
	default:
		return fmt.Errorf("invalid stock.mode %q: must be best_effort or strict", c.Stock.Mode)
	}
	if c.Database.Password == "" && c.App.Env == "production" {
		return fmt.Errorf("database.password is required in production")
	}
	return nil
}
