package config

import (
	"os"
	"strings"
	"time"
)

// RateLimitConfig tunes the Redis token bucket guarding the bidding
// endpoints.  Disabled buckets pass every request through, and a dead
// Redis degrades the same way at runtime.
type RateLimitConfig struct {
	Enabled        bool
	Prefix         string        // key namespace, e.g. "metalx:rl"
	Capacity       int           // bucket size
	RefillTokens   int           // tokens added per interval
	RefillInterval time.Duration // refill cadence
	TTL            time.Duration // idle bucket expiry
}

func loadRateLimit() RateLimitConfig {
	enabled := true
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled = strings.EqualFold(v, "true") || v == "1"
	}
	return RateLimitConfig{
		Enabled:        enabled,
		Prefix:         envOr("RATE_LIMIT_PREFIX", "metalx:rl"),
		Capacity:       intOr("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   intOr("RATE_LIMIT_REFILL_TOKENS", 10),
		RefillInterval: durationOr("RATE_LIMIT_REFILL_SEC", 10*time.Second),
		TTL:            durationOr("RATE_LIMIT_TTL_SEC", 10*time.Minute),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
