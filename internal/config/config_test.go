package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bridge.SettleDelay != 15*time.Second {
		t.Errorf("Expected settle delay 15s, got %v", cfg.Bridge.SettleDelay)
	}
	if cfg.Bridge.SuccessRate == nil || *cfg.Bridge.SuccessRate != 0.7 {
		t.Errorf("Expected success rate 0.7, got %v", cfg.Bridge.SuccessRate)
	}
	if cfg.KV.Backend != "sqlite" {
		t.Errorf("Expected sqlite kv backend, got %s", cfg.KV.Backend)
	}
	if cfg.Invoices.DefaultCryptoType != "SOL" {
		t.Errorf("Expected default crypto type SOL, got %s", cfg.Invoices.DefaultCryptoType)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KV_BACKEND", "REDIS")
	t.Setenv("BRIDGE_SETTLE_DELAY", "2s")
	t.Setenv("RATE_LIMIT_RPS", "5.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.KV.Backend != "redis" {
		t.Errorf("Expected redis backend, got %s", cfg.KV.Backend)
	}
	if cfg.Bridge.SettleDelay != 2*time.Second {
		t.Errorf("Expected settle delay 2s, got %v", cfg.Bridge.SettleDelay)
	}
	if cfg.Server.RateLimitRPS != 5.5 {
		t.Errorf("Expected rps 5.5, got %v", cfg.Server.RateLimitRPS)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "PRICE_POLLING_INTERVAL", "soon"},
		{"bad kv backend", "KV_BACKEND", "memcached"},
		{"success rate above one", "BRIDGE_SUCCESS_RATE", "1.5"},
		{"negative success rate", "BRIDGE_SUCCESS_RATE", "-0.1"},
		{"unparsable success rate", "BRIDGE_SUCCESS_RATE", "often"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ZeroSuccessRate(t *testing.T) {
	t.Setenv("BRIDGE_SUCCESS_RATE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bridge.SuccessRate == nil || *cfg.Bridge.SuccessRate != 0 {
		t.Errorf("Expected success rate 0 to be kept, got %v", cfg.Bridge.SuccessRate)
	}
}
