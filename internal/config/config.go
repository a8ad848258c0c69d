// Package config loads and validates tuml configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tuml/internal/quota"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LogConfig toggles zap development features.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// APIConfig holds the remote API endpoint, credentials and pacing.
type APIConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	ConsumerKey       string  `mapstructure:"consumer_key"`
	ConsumerSecret    string  `mapstructure:"consumer_secret"`
	OAuthToken        string  `mapstructure:"oauth_token"`
	OAuthSecret       string  `mapstructure:"oauth_secret"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// QuotaConfig sets the per-window call ceilings.
type QuotaConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	PerDay    int `mapstructure:"per_day"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// DiscoveryConfig tunes frontier expansion.
type DiscoveryConfig struct {
	PostsPerBlog int `mapstructure:"posts_per_blog"`
	AvatarHeight int `mapstructure:"avatar_height"`
}

// ServerConfig controls the read-only HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from an optional .env file, the config file at path
// (skipped when empty) and TUML_* environment variables.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TUML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("api.base_url", "https://api.tumblr.com/v2")
	v.SetDefault("api.consumer_key", "")
	v.SetDefault("api.consumer_secret", "")
	v.SetDefault("api.oauth_token", "")
	v.SetDefault("api.oauth_secret", "")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.user_agent", "tuml/0.1")
	v.SetDefault("quota.per_minute", 100)
	v.SetDefault("quota.per_hour", 1000)
	v.SetDefault("quota.per_day", 5000)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "tuml.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("discovery.posts_per_blog", 1)
	v.SetDefault("discovery.avatar_height", 64)
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.ConsumerKey == "" {
		return fmt.Errorf("api.consumer_key is required")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must be >= 0")
	}
	ceilings := quota.Ceilings{PerMinute: c.Quota.PerMinute, PerHour: c.Quota.PerHour, PerDay: c.Quota.PerDay}
	if err := ceilings.Validate(); err != nil {
		return fmt.Errorf("quota.per_minute, quota.per_hour and quota.per_day: %w", err)
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres, memory; got %q", c.Storage.Driver)
	}
	if c.Discovery.PostsPerBlog <= 0 {
		return fmt.Errorf("discovery.posts_per_blog must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// APITimeout converts the configured timeout into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
