package config

import (
	"testing"
	"time"

	"ecolisting-chat-backend/internal/env"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{env.StorageBackend, env.RealtimeBackend, env.CORSOrigins, env.AutoReplyLookback, env.FunctionsURL} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.StorageBackend != "dynamodb" || cfg.RealtimeBackend != "redis" {
		t.Fatalf("unexpected backends %q/%q", cfg.StorageBackend, cfg.RealtimeBackend)
	}
	if cfg.AutoReplyLookback != 120*time.Second {
		t.Fatalf("expected 120s lookback, got %s", cfg.AutoReplyLookback)
	}
	if cfg.HistoryLimit != 200 {
		t.Fatalf("expected history limit 200, got %d", cfg.HistoryLimit)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(env.StorageBackend, "Memory")
	t.Setenv(env.CORSOrigins, "https://a.test, ,https://b.test")
	t.Setenv(env.AutoReplyLookback, "90")
	t.Setenv(env.FunctionsURL, "https://fn.test/")

	cfg := Load()
	if cfg.StorageBackend != "memory" {
		t.Fatalf("expected memory storage, got %q", cfg.StorageBackend)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.AutoReplyLookback != 90*time.Second {
		t.Fatalf("expected 90s lookback, got %s", cfg.AutoReplyLookback)
	}
	if cfg.FunctionsURL != "https://fn.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.FunctionsURL)
	}
}
