// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Collector CollectorConfig `mapstructure:"collector"`
}

// CollectorConfig describes the paginated endpoint being collected.
type CollectorConfig struct {
	// PageURL is a template containing %d for the page number.
	PageURL string `mapstructure:"page_url"`
	// MaxPages bounds one collection run; 0 means until the end marker.
	MaxPages int `mapstructure:"max_pages"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig configures the outbound transport.
type HTTPConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	UserAgents     []string `mapstructure:"user_agents"`
}

// RateLimitConfig bounds outbound request rate and concurrency.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// RetryConfig governs inline retry backoff.
type RetryConfig struct {
	MaxRetries    int     `mapstructure:"max_retries"`
	BaseDelay     float64 `mapstructure:"base_delay_seconds"`
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	MaxDelay      float64 `mapstructure:"max_delay_seconds"`
}

// BreakerConfig governs the per-target circuit breaker.
type BreakerConfig struct {
	FailureThreshold       int `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int `mapstructure:"recovery_timeout_seconds"`
	SuccessThreshold       int `mapstructure:"success_threshold"`
}

// ProxyConfig configures egress proxy rotation.
type ProxyConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Proxies         []string `mapstructure:"proxies"`
	CooldownSeconds int      `mapstructure:"cooldown_seconds"`
}

// StateConfig sets the directory holding the persisted JSON state files.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// SchedulerConfig governs the failed-task retry loop.
type SchedulerConfig struct {
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	MaxAttempts          int `mapstructure:"max_attempts"`
	RetryDelaySeconds    int `mapstructure:"retry_delay_seconds"`
	MaxDelaySeconds      int `mapstructure:"max_delay_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("rate_limit.requests_per_second", 4.0)
	v.SetDefault("rate_limit.max_concurrent", 5)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_seconds", 1.0)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.max_delay_seconds", 60.0)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout_seconds", 60)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.proxies", []string{})
	v.SetDefault("proxy.cooldown_seconds", 300)
	v.SetDefault("state.dir", "data/state")
	v.SetDefault("scheduler.check_interval_seconds", 30)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.retry_delay_seconds", 300)
	v.SetDefault("scheduler.max_delay_seconds", 3600)
	v.SetDefault("collector.page_url", "")
	v.SetDefault("collector.max_pages", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0")
	}
	if c.RateLimit.MaxConcurrent <= 0 {
		return fmt.Errorf("rate_limit.max_concurrent must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay_seconds must be >= 0")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be > 0")
	}
	if c.Breaker.RecoveryTimeoutSeconds <= 0 {
		return fmt.Errorf("breaker.recovery_timeout_seconds must be > 0")
	}
	if c.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker.success_threshold must be > 0")
	}
	if c.Proxy.Enabled && len(c.Proxy.Proxies) == 0 {
		return fmt.Errorf("proxy.proxies must not be empty when proxy is enabled")
	}
	if c.Scheduler.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.check_interval_seconds must be > 0")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be > 0")
	}
	if strings.TrimSpace(c.State.Dir) == "" {
		return fmt.Errorf("state.dir must be set")
	}
	return nil
}

// HTTPTimeout converts the transport timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ProxyCooldown converts the proxy cooldown config into a duration.
func (c Config) ProxyCooldown() time.Duration {
	return time.Duration(c.Proxy.CooldownSeconds) * time.Second
}

// RecoveryTimeout converts the breaker recovery config into a duration.
func (c Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.Breaker.RecoveryTimeoutSeconds) * time.Second
}
