package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("RECALL_RESPONSE_DAYS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RecallResponseDays != 3 {
		t.Fatalf("expected 3-day recall response window, got %d", cfg.RecallResponseDays)
	}
	if cfg.RecallWorkerInterval != 15*time.Minute {
		t.Fatalf("expected default worker interval, got %s", cfg.RecallWorkerInterval)
	}
	if cfg.RecallSendHour != 10 {
		t.Fatalf("expected recall send hour 10, got %d", cfg.RecallSendHour)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("RECALL_RESPONSE_DAYS", "5")
	t.Setenv("RECALL_WORKER_INTERVAL", "1h")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.RecallResponseDays != 5 {
		t.Fatalf("expected overridden response days, got %d", cfg.RecallResponseDays)
	}
	if cfg.RecallWorkerInterval != time.Hour {
		t.Fatalf("expected overridden worker interval, got %s", cfg.RecallWorkerInterval)
	}
	if !cfg.UseMemoryQueue {
		t.Fatal("expected memory queue enabled")
	}
}
