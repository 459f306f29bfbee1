package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.MaxExpansionDays != 92 {
		t.Errorf("expected default expansion horizon 92 days, got %d", cfg.MaxExpansionDays)
	}
	if cfg.SubscriberBuffer != 16 {
		t.Errorf("expected default subscriber buffer 16, got %d", cfg.SubscriberBuffer)
	}
	if cfg.StreamMaxAttempts != 5 {
		t.Errorf("expected default stream attempts 5, got %d", cfg.StreamMaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SUBSCRIBER_BUFFER", "64")
	t.Setenv("SSE_HEARTBEAT", "10s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.SubscriberBuffer != 64 {
		t.Errorf("expected subscriber buffer 64, got %d", cfg.SubscriberBuffer)
	}
	if cfg.SSEHeartbeat != 10*time.Second {
		t.Errorf("expected heartbeat 10s, got %s", cfg.SSEHeartbeat)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.RedisTLS {
		t.Error("expected RedisTLS true")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_EXPANSION_DAYS", "not-a-number")
	t.Setenv("SSE_HEARTBEAT", "soon")

	cfg := Load()

	if cfg.MaxExpansionDays != 92 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.MaxExpansionDays)
	}
	if cfg.SSEHeartbeat != 25*time.Second {
		t.Errorf("malformed duration should fall back to default, got %s", cfg.SSEHeartbeat)
	}
}
