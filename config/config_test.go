// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/pullmq/consumer"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RequestTimeout != consumer.DefaultRequestTimeout {
		t.Errorf("expected default request timeout %v, got %v", consumer.DefaultRequestTimeout, cfg.RequestTimeout)
	}
	if cfg.CloseTimeout != consumer.DefaultCloseTimeout {
		t.Errorf("expected default close timeout %v, got %v", consumer.DefaultCloseTimeout, cfg.CloseTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
	if cfg.Breaker.Enabled {
		t.Error("expected circuit breaker disabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config with group is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing group",
			modify:  func(c *Config) { c.Group = "" },
			wantErr: true,
		},
		{
			name:    "negative request timeout",
			modify:  func(c *Config) { c.RequestTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero close timeout",
			modify:  func(c *Config) { c.CloseTimeout = 0 },
			wantErr: true,
		},
		{
			name: "subscription without topic",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Expression: "tagA"}}
			},
			wantErr: true,
		},
		{
			name: "subscription with bad type",
			modify: func(c *Config) {
				c.Subscriptions = []SubscriptionConfig{{Topic: "orders", Type: "REGEX"}}
			},
			wantErr: true,
		},
		{
			name: "breaker enabled without threshold",
			modify: func(c *Config) {
				c.Breaker.Enabled = true
				c.Breaker.FailureThreshold = 0
			},
			wantErr: true,
		},
		{
			name: "throttle enabled without rate",
			modify: func(c *Config) {
				c.Throttle.Enabled = true
				c.Throttle.Rate = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Group = "orders-workers"
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != consumer.DefaultRequestTimeout {
		t.Errorf("expected defaults for missing file, got %v", cfg.RequestTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	data := `
group: orders-workers
endpoints:
  - broker-1:8081
request_timeout: 2s
await_duration: 10s
subscriptions:
  - topic: orders
    expression: created||updated
  - topic: audits
    type: SQL92
    expression: "region = 'eu'"
log:
  level: debug
  format: json
throttle:
  enabled: true
  rate: 20
  burst: 5
`
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Group != "orders-workers" {
		t.Errorf("expected group orders-workers, got %s", cfg.Group)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("expected request timeout 2s, got %v", cfg.RequestTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.CloseTimeout != consumer.DefaultCloseTimeout {
		t.Errorf("expected default close timeout, got %v", cfg.CloseTimeout)
	}

	exprs := cfg.Expressions()
	if len(exprs) != 2 {
		t.Fatalf("expected 2 expressions, got %d", len(exprs))
	}
	if exprs["orders"].Type != consumer.FilterTypeTag || exprs["orders"].Expression != "created||updated" {
		t.Errorf("unexpected orders expression: %+v", exprs["orders"])
	}
	if exprs["audits"].Type != consumer.FilterTypeSQL92 {
		t.Errorf("expected SQL92 type for audits, got %+v", exprs["audits"])
	}

	opts := cfg.Options()
	if opts.RequestTimeout != 2*time.Second || opts.AwaitDuration != 10*time.Second {
		t.Errorf("options not mapped from config: %+v", opts)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("group: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}
