// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/absmach/pullmq/consumer"
)

// Config holds all configuration for a pull consumer.
type Config struct {
	// Group is the consumer load-balancing group identity.
	Group string `yaml:"group"`

	// Endpoints lists broker gateway addresses. The gateway implementation
	// decides how they are used; the consumer core never dials them.
	Endpoints []string `yaml:"endpoints"`

	// RequestTimeout bounds synchronous call waits.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CloseTimeout bounds the shutdown drain.
	CloseTimeout time.Duration `yaml:"close_timeout"`

	// AwaitDuration is the broker long-poll window for empty fetches.
	AwaitDuration time.Duration `yaml:"await_duration"`

	// EvictInterval is the stale-lease sweep period. Zero disables it.
	EvictInterval time.Duration `yaml:"evict_interval"`

	// Subscriptions established right after start.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`

	Log      LogConfig      `yaml:"log"`
	Metrics  bool           `yaml:"metrics_enabled"`
	Breaker  BreakerConfig  `yaml:"circuit_breaker"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

// SubscriptionConfig declares one topic subscription.
type SubscriptionConfig struct {
	Topic      string `yaml:"topic"`
	Type       string `yaml:"type"` // "TAG" (default) or "SQL92"
	Expression string `yaml:"expression"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// BreakerConfig holds gateway circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// ThrottleConfig holds gateway fetch rate limit settings.
type ThrottleConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"` // fetches per second
	Burst   int     `yaml:"burst"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		RequestTimeout: consumer.DefaultRequestTimeout,
		CloseTimeout:   consumer.DefaultCloseTimeout,
		AwaitDuration:  consumer.DefaultAwaitDuration,
		EvictInterval:  consumer.DefaultEvictInterval,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Throttle: ThrottleConfig{
			Rate:  10,
			Burst: 5,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file is absent.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Group == "" {
		return fmt.Errorf("group cannot be empty")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive")
	}
	if c.AwaitDuration < 0 {
		return fmt.Errorf("await_duration cannot be negative")
	}
	if c.EvictInterval < 0 {
		return fmt.Errorf("evict_interval cannot be negative")
	}
	for _, sub := range c.Subscriptions {
		if sub.Topic == "" {
			return fmt.Errorf("subscription topic cannot be empty")
		}
		switch sub.Type {
		case "", "TAG", "SQL92":
		default:
			return fmt.Errorf("subscription type %q must be TAG or SQL92", sub.Type)
		}
	}
	if c.Breaker.Enabled && c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive when enabled")
	}
	if c.Throttle.Enabled {
		if c.Throttle.Rate <= 0 {
			return fmt.Errorf("throttle.rate must be positive when enabled")
		}
		if c.Throttle.Burst <= 0 {
			return fmt.Errorf("throttle.burst must be positive when enabled")
		}
	}
	return nil
}

// Options converts the file configuration into consumer options.
func (c *Config) Options() *consumer.Options {
	return consumer.NewOptions().
		SetRequestTimeout(c.RequestTimeout).
		SetCloseTimeout(c.CloseTimeout).
		SetAwaitDuration(c.AwaitDuration).
		SetEvictInterval(c.EvictInterval).
		SetEnableMetrics(c.Metrics).
		SetLogger(c.Logger())
}

// Expressions converts the configured subscriptions into filter expressions
// keyed by topic.
func (c *Config) Expressions() map[string]consumer.FilterExpression {
	out := make(map[string]consumer.FilterExpression, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		if sub.Type == "SQL92" {
			out[sub.Topic] = consumer.NewFilterExpressionWithType(sub.Expression, consumer.FilterTypeSQL92)
			continue
		}
		out[sub.Topic] = consumer.NewFilterExpression(sub.Expression)
	}
	return out
}

// Logger builds an slog logger from the log configuration.
func (c *Config) Logger() *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
