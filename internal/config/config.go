package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the treeline server.
type Config struct {
	DBPath     string
	ListenAddr string

	// RedisAddr enables the children read cache when non-empty.
	RedisAddr string
	CacheTTL  time.Duration

	// RequestTimeout bounds each mutation's time on the transaction
	// boundary; exceeding it surfaces as a timeout, not a conflict.
	RequestTimeout time.Duration

	// Client-side transport retry tuning.
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxAttempts  int
}

// DefaultConfig returns a Config with sensible defaults. The cache is
// disabled by default.
func DefaultConfig() Config {
	return Config{
		DBPath:         "",
		ListenAddr:     ":8080",
		RedisAddr:      "",
		CacheTTL:       5 * time.Minute,
		RequestTimeout: 10 * time.Second,
		RetryInitial:   250 * time.Millisecond,
		RetryMax:       10 * time.Second,
		MaxAttempts:    5,
	}
}

// LoadConfig reads configuration from environment variables, falling back
// to defaults for any unset values.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("TREELINE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TREELINE_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TREELINE_REDIS"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("TREELINE_CACHE_TTL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.CacheTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TREELINE_REQUEST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TREELINE_RETRY_INITIAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.RetryInitial = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TREELINE_RETRY_MAX_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.RetryMax = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TREELINE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	return cfg
}
