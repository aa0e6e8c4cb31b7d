package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	snerrors "github.com/wippyai/sandnet/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sandnet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LocalAddress != Default().LocalAddress {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.FirstPort != 63100 || cfg.LastPort != 63180 {
		t.Errorf("wrong default port range: %d-%d", cfg.FirstPort, cfg.LastPort)
	}
	if cfg.DefaultTimeout.Std() != 60*time.Second {
		t.Errorf("wrong default timeout: %v", cfg.DefaultTimeout.Std())
	}
}

func TestLoad_OverlaysFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
local_address: 10.0.0.7
first_port: 40000
last_port: 40010
cleanup_threshold: 2s
conflict_backoff: 50ms
advert_servers:
  - http://dht-a.example/RPC2
  - http://dht-b.example/RPC2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LocalAddress != "10.0.0.7" {
		t.Errorf("local_address not applied: %q", cfg.LocalAddress)
	}
	if cfg.FirstPort != 40000 || cfg.LastPort != 40010 {
		t.Errorf("port range not applied: %d-%d", cfg.FirstPort, cfg.LastPort)
	}
	if cfg.CleanupThreshold.Std() != 2*time.Second {
		t.Errorf("cleanup_threshold not applied: %v", cfg.CleanupThreshold.Std())
	}
	if cfg.ConflictBackoff.Std() != 50*time.Millisecond {
		t.Errorf("conflict_backoff not applied: %v", cfg.ConflictBackoff.Std())
	}
	// Unset fields keep their defaults.
	if cfg.PollInterval.Std() != 100*time.Millisecond {
		t.Errorf("poll_interval default lost: %v", cfg.PollInterval.Std())
	}
	if cfg.EventBudget != 1000 {
		t.Errorf("event_budget default lost: %d", cfg.EventBudget)
	}
	if len(cfg.AdvertServers) != 2 {
		t.Errorf("advert_servers not applied: %v", cfg.AdvertServers)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "default_timeout: soon\n")
	if _, err := Load(path); !snerrors.IsKind(err, snerrors.KindInvalidArgument) {
		t.Errorf("expected invalid_argument, got %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "local_address: [unterminated\n")
	if _, err := Load(path); !snerrors.IsKind(err, snerrors.KindInvalidArgument) {
		t.Errorf("expected invalid_argument, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty local address", func(c *Config) { c.LocalAddress = "" }},
		{"zero first port", func(c *Config) { c.FirstPort = 0 }},
		{"inverted range", func(c *Config) { c.LastPort = c.FirstPort - 1 }},
		{"zero timeout", func(c *Config) { c.DefaultTimeout = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative threshold", func(c *Config) { c.CleanupThreshold = Duration(-time.Second) }},
		{"negative backoff", func(c *Config) { c.ConflictBackoff = Duration(-time.Millisecond) }},
		{"zero budget", func(c *Config) { c.EventBudget = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !snerrors.IsKind(err, snerrors.KindInvalidArgument) {
				t.Errorf("expected invalid_argument, got %v", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}
