package config

import (
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("ARENA_BASE_URL", "https://arena.example.com")
	t.Setenv("VIEWER_ID", "u1")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReconnectPolicy != "backoff" || cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("unexpected reconnect defaults: %+v", cfg)
	}
	if cfg.RefetchInterval != 30*time.Second {
		t.Fatalf("unexpected refetch default: %v", cfg.RefetchInterval)
	}
}

func TestLoadRequiredFields(t *testing.T) {
	t.Setenv("ARENA_BASE_URL", "")
	t.Setenv("VIEWER_ID", "u1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without base URL")
	}
	t.Setenv("ARENA_BASE_URL", "https://arena.example.com")
	t.Setenv("VIEWER_ID", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without viewer id")
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	setBase(t)
	t.Setenv("RECONNECT_POLICY", "frantic")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	setBase(t)
	t.Setenv("RECONNECT_POLICY", "fixed")
	t.Setenv("RECONNECT_DELAY", "2s")
	t.Setenv("REFETCH_INTERVAL", "0s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReconnectPolicy != "fixed" || cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("unexpected reconnect config: %+v", cfg)
	}
	if cfg.RefetchInterval != 0 {
		t.Fatalf("polling should be disabled: %v", cfg.RefetchInterval)
	}
}
