package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CLINIKA_AUTH_SECRET", "")
	if _, err := Load(); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLINIKA_AUTH_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 14*24*time.Hour {
		t.Fatalf("unexpected TTLs: %v / %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.LockoutThreshold != 5 || cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults: %d / %v", cfg.LockoutThreshold, cfg.LockoutDuration)
	}
	if cfg.PermissionCacheTTL != 5*time.Minute {
		t.Fatalf("PermissionCacheTTL = %v", cfg.PermissionCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLINIKA_AUTH_SECRET", "s3cret")
	t.Setenv("CLINIKA_ACCESS_TTL", "5m")
	t.Setenv("CLINIKA_LOCKOUT_THRESHOLD", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.LockoutThreshold != 3 {
		t.Fatalf("LockoutThreshold = %d", cfg.LockoutThreshold)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CLINIKA_AUTH_SECRET", "s3cret")

	t.Setenv("CLINIKA_ACCESS_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	t.Setenv("CLINIKA_ACCESS_TTL", "")

	t.Setenv("CLINIKA_REFRESH_TTL", "-1h")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative duration")
	}
	t.Setenv("CLINIKA_REFRESH_TTL", "")

	t.Setenv("CLINIKA_LOCKOUT_THRESHOLD", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero threshold")
	}
}
