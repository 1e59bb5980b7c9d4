package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "super-secret")
	configViper.Set("sso.jwks_url", "https://sso.unit.example/jwks")
	configViper.Set("sso.issuers", "https://sso.unit.example")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "ippt.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.TokenIssuer != "ippt-auth" || cfg.TokenAudience != "ippt-backend" {
		t.Fatalf("unexpected token identity %q/%q", cfg.TokenIssuer, cfg.TokenAudience)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if len(cfg.SSOIssuers) != 1 || cfg.SSOIssuers[0] != "https://sso.unit.example" {
		t.Fatalf("unexpected issuers %#v", cfg.SSOIssuers)
	}
}

func TestLoadSplitsOriginList(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "super-secret")
	configViper.Set("sso.jwks_url", "https://sso.unit.example/jwks")
	configViper.Set("sso.issuers", "https://sso.unit.example, https://sso.hq.example")
	configViper.Set("http.allowed_origins", "https://app.unit.example , https://staging.unit.example")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.SSOIssuers) != 2 {
		t.Fatalf("unexpected issuers %#v", cfg.SSOIssuers)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://staging.unit.example" {
		t.Fatalf("unexpected origins %#v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	configViper := NewViper()
	configViper.Set("sso.jwks_url", "https://sso.unit.example/jwks")
	configViper.Set("sso.issuers", "https://sso.unit.example")

	if _, err := Load(configViper); err == nil {
		t.Fatal("expected load to fail without a signing secret")
	}
}

func TestLoadRejectsMissingIssuers(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "super-secret")
	configViper.Set("sso.jwks_url", "https://sso.unit.example/jwks")

	if _, err := Load(configViper); err == nil {
		t.Fatal("expected load to fail without sso issuers")
	}
}
