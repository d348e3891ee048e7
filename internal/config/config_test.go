package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WALLET_API_URL", "")
	t.Setenv("API_TIMEOUT_SECONDS", "")
	t.Setenv("API_TIMEOUT", "")
	t.Setenv("PAGE_SIZE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("expected base url %s, got %s", defaultBaseURL, cfg.BaseURL)
	}
	if cfg.APIBase() != defaultBaseURL+"/api" {
		t.Fatalf("unexpected api base %s", cfg.APIBase())
	}
	if cfg.APITimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.APITimeout)
	}
	if cfg.PageSize != 20 {
		t.Fatalf("expected page size 20, got %d", cfg.PageSize)
	}
	if cfg.CredentialScheme != SchemeCookie {
		t.Fatalf("expected cookie scheme, got %s", cfg.CredentialScheme)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WALLET_API_URL", "http://localhost:9000/")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("WALLET_AUTH_SCHEME", "TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://localhost:9000" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.BaseURL)
	}
	if cfg.APITimeout != 5*time.Second {
		t.Fatalf("expected 5s, got %s", cfg.APITimeout)
	}
	if cfg.IdempotencyTTL != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", cfg.IdempotencyTTL)
	}
	if cfg.CredentialScheme != SchemeToken {
		t.Fatalf("expected token scheme, got %s", cfg.CredentialScheme)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"API_TIMEOUT_SECONDS":     "soon",
		"PAGE_SIZE":               "0",
		"WALLET_AUTH_SCHEME":      "basic",
		"SANDBOX_OPENING_BALANCE": "lots",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
