// Package config loads runtime configuration from environment
// variables.  Required variables halt startup with a fatal log; optional
// ones fall back to sensible defaults so a bare .env runs the service
// locally.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting the service reads at startup.
type Config struct {
	Env       string // "dev", "test" or "prod"
	Port      string // HTTP port to listen on
	DBUser    string
	DBPass    string // optional
	DBHost    string
	DBPort    string
	DBName    string
	JWTSecret string

	DBMaxOpenConns int
	DBMaxIdleConns int

	AccessTTLMin int // access token lifetime in minutes
	BcryptCost   int

	// MonitorInterval is the polling period of the auction scheduler;
	// MonitorTolerance is its closure look-ahead window.
	MonitorInterval  time.Duration
	MonitorTolerance time.Duration

	RateLimit RateLimitConfig
}

// Load reads the configuration.  Missing required variables are fatal.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"),
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		DBMaxOpenConns:   intOr("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:   intOr("DB_MAX_IDLE_CONNS", 25),
		AccessTTLMin:     intOr("ACCESS_TOKEN_TTL_MIN", 30),
		BcryptCost:       intOr("BCRYPT_COST", 12),
		MonitorInterval:  durationOr("MONITOR_INTERVAL_SEC", 10*time.Second),
		MonitorTolerance: durationOr("MONITOR_TOLERANCE_SEC", 30*time.Second),
		RateLimit:        loadRateLimit(),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr parses an optional integer variable with a default.
func intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// durationOr parses an optional whole-seconds variable with a default.
func durationOr(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid seconds for %s: %q", key, s)
	}
	return time.Duration(n) * time.Second
}
