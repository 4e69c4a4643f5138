package config

import (
	"testing"
	"time"
)

// TestPurpose: Validates configuration defaults for a bare environment.
// Scope: Unit Test
// Expected: Load succeeds with documented defaults for every section.
func TestConfig_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Session.FreshnessWindow != 5*time.Minute {
		t.Errorf("expected 5m freshness window, got %v", cfg.Session.FreshnessWindow)
	}
	if cfg.Session.CacheTTL != time.Hour {
		t.Errorf("expected 1h cache ttl, got %v", cfg.Session.CacheTTL)
	}
	if cfg.CacheService.Timeout != 3*time.Second {
		t.Errorf("expected 3s cache timeout, got %v", cfg.CacheService.Timeout)
	}
	if cfg.Backend.Timeout != 8*time.Second {
		t.Errorf("expected 8s backend timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.CacheStore.Backend != "memory" {
		t.Errorf("expected memory cache backend, got %s", cfg.CacheStore.Backend)
	}
}

// TestPurpose: Validates that environment variables override defaults, including duration parsing.
// Scope: Unit Test
// Expected: Overridden values land in the config; malformed durations fall back to defaults.
func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("SESSION_FRESHNESS_WINDOW", "90s")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("BACKEND_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9999" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Session.FreshnessWindow != 90*time.Second {
		t.Errorf("expected 90s window, got %v", cfg.Session.FreshnessWindow)
	}
	if cfg.CacheStore.Backend != "redis" {
		t.Errorf("expected redis backend, got %s", cfg.CacheStore.Backend)
	}
	if cfg.Backend.Timeout != 8*time.Second {
		t.Errorf("expected fallback to 8s on malformed duration, got %v", cfg.Backend.Timeout)
	}
}

// TestPurpose: Validates the per-binary validators: the gateway needs its collaborators, the cache daemon needs credentials for postgres only.
// Scope: Unit Test
// Expected: Errors for missing BACKEND_URL and for postgres without a password; memory backend validates clean.
func TestConfig_Validators(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := cfg.ValidateGateway(); err == nil {
		t.Error("expected gateway validation to fail without BACKEND_URL")
	}
	cfg.Backend.URL = "https://id.example.com"
	if err := cfg.ValidateGateway(); err != nil {
		t.Errorf("unexpected gateway validation error: %v", err)
	}

	if err := cfg.ValidateCacheStore(); err != nil {
		t.Errorf("memory backend must validate clean: %v", err)
	}
	cfg.CacheStore.Backend = "postgres"
	if err := cfg.ValidateCacheStore(); err == nil {
		t.Error("expected postgres validation to fail without DB_PASSWORD")
	}
	cfg.CacheStore.Backend = "carrier-pigeon"
	if err := cfg.ValidateCacheStore(); err == nil {
		t.Error("expected unknown backend to be rejected")
	}
}
