// Package config loads the service configuration from an optional YAML
// file and HUBCACHE_-prefixed environment variables. Environment values
// override file values; defaults cover everything else.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hubcache/hubcache/pkg/logging"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
	Upstream  UpstreamConfig
	Scheduler SchedulerConfig
	TTL       TTLSettings
	Log       LogConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	// ShutdownTimeout bounds the graceful drain on termination.
	ShutdownTimeout time.Duration
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Addr is the metrics listen address; empty disables the endpoint.
	Addr string
}

// RedisConfig holds the cache store connection settings.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	MaxMemory       string
	MaxMemoryPolicy string
}

// UpstreamConfig holds the upstream API client settings.
type UpstreamConfig struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// SchedulerConfig holds the throttle-aware call scheduler settings.
type SchedulerConfig struct {
	MinInterval time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	QueueSize   int
}

// TTLSettings holds the cache lifetimes per result class.
type TTLSettings struct {
	Positive time.Duration
	Owner    time.Duration
	Negative time.Duration
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level      logging.LogLevel
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Load reads the configuration. path names an optional YAML file; a
// missing file is fine, a malformed one is not.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("HUBCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Redis: RedisConfig{
			Addr:            v.GetString("redis.addr"),
			Password:        v.GetString("redis.password"),
			DB:              v.GetInt("redis.db"),
			MaxMemory:       v.GetString("redis.max_memory"),
			MaxMemoryPolicy: v.GetString("redis.max_memory_policy"),
		},
		Upstream: UpstreamConfig{
			BaseURL:   v.GetString("upstream.base_url"),
			Token:     v.GetString("upstream.token"),
			UserAgent: v.GetString("upstream.user_agent"),
			Timeout:   v.GetDuration("upstream.timeout"),
		},
		Scheduler: SchedulerConfig{
			MinInterval: v.GetDuration("scheduler.min_interval"),
			MaxRetries:  v.GetInt("scheduler.max_retries"),
			BaseDelay:   v.GetDuration("scheduler.base_delay"),
			QueueSize:   v.GetInt("scheduler.queue_size"),
		},
		TTL: TTLSettings{
			Positive: v.GetDuration("ttl.positive"),
			Owner:    v.GetDuration("ttl.owner"),
			Negative: v.GetDuration("ttl.negative"),
		},
		Log: LogConfig{
			Level:      logging.LogLevel(v.GetString("log.level")),
			Pretty:     v.GetBool("log.pretty"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_memory", "2gb")
	v.SetDefault("redis.max_memory_policy", "allkeys-lru")
	v.SetDefault("upstream.base_url", "https://api.github.com")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.user_agent", "hubcache/1.0")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("scheduler.min_interval", "1s")
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.base_delay", "1s")
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("ttl.positive", "1h")
	v.SetDefault("ttl.owner", "2h")
	v.SetDefault("ttl.negative", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must not be empty")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url must not be empty")
	}
	if c.Upstream.UserAgent == "" {
		return fmt.Errorf("upstream.user_agent must not be empty")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries must not be negative")
	}
	if c.Scheduler.MinInterval < 0 {
		return fmt.Errorf("scheduler.min_interval must not be negative")
	}
	for name, ttl := range map[string]time.Duration{
		"ttl.positive": c.TTL.Positive,
		"ttl.owner":    c.TTL.Owner,
		"ttl.negative": c.TTL.Negative,
	} {
		if ttl < time.Second {
			return fmt.Errorf("%s must be at least one second, got %v", name, ttl)
		}
	}
	return nil
}
