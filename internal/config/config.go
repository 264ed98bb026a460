// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned when the token signing secret is not
// configured. There is no usable fallback; the process must not start.
var ErrMissingSecret = errors.New("config: CLINIKA_AUTH_SECRET is not set")

const (
	defaultHTTPAddr         = ":8080"
	defaultIssuer           = "clinika"
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 14 * 24 * time.Hour
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultCacheTTL         = 5 * time.Minute
)

// Config holds everything cmd/api needs to wire the service.
type Config struct {
	HTTPAddr string
	PGDSN    string

	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	PermissionCacheTTL time.Duration
}

// Load reads configuration from the environment, applying defaults for
// everything except the signing secret.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           envOr("CLINIKA_HTTP_ADDR", defaultHTTPAddr),
		PGDSN:              strings.TrimSpace(os.Getenv("CLINIKA_PG_DSN")),
		AuthSecret:         strings.TrimSpace(os.Getenv("CLINIKA_AUTH_SECRET")),
		Issuer:             envOr("CLINIKA_ISSUER", defaultIssuer),
		AccessTTL:          defaultAccessTTL,
		RefreshTTL:         defaultRefreshTTL,
		LockoutThreshold:   defaultLockoutThreshold,
		LockoutDuration:    defaultLockoutDuration,
		PermissionCacheTTL: defaultCacheTTL,
	}
	if cfg.AuthSecret == "" {
		return Config{}, ErrMissingSecret
	}

	var err error
	if cfg.AccessTTL, err = envDuration("CLINIKA_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("CLINIKA_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutDuration, err = envDuration("CLINIKA_LOCKOUT_DURATION", cfg.LockoutDuration); err != nil {
		return Config{}, err
	}
	if cfg.PermissionCacheTTL, err = envDuration("CLINIKA_PERMISSION_CACHE_TTL", cfg.PermissionCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutThreshold, err = envInt("CLINIKA_LOCKOUT_THRESHOLD", cfg.LockoutThreshold); err != nil {
		return Config{}, err
	}
	if cfg.LockoutThreshold < 1 {
		return Config{}, fmt.Errorf("config: CLINIKA_LOCKOUT_THRESHOLD must be positive, got %d", cfg.LockoutThreshold)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, d)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
