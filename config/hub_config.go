package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// JWT
	JWTSecret string

	// Sync
	SyncMaxBatchOps int
	SyncRateLimit   int // requests per owner per minute

	// Sweeper (orphaned PENDING ledger records)
	SweepInterval   time.Duration
	SweepPendingTTL time.Duration

	// Cache thresholds (device mode)
	CacheFreshWindow   time.Duration
	CacheExpiredWindow time.Duration

	// Device mode (sync agent pointed at a remote server)
	SyncServerURL      string
	SyncToken          string
	SyncAccessMode     string
	SyncInterval       time.Duration
	ReachProbeInterval time.Duration

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Sync
		SyncMaxBatchOps: getEnvInt("SYNC_MAX_BATCH_OPS", 500),
		SyncRateLimit:   getEnvInt("SYNC_RATE_LIMIT_PER_MIN", 120),

		// Sweeper
		SweepInterval:   time.Duration(getEnvInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
		SweepPendingTTL: time.Duration(getEnvInt("SWEEP_PENDING_TTL_SEC", 300)) * time.Second,

		// Cache
		CacheFreshWindow:   time.Duration(getEnvInt("CACHE_FRESH_MIN", 5)) * time.Minute,
		CacheExpiredWindow: time.Duration(getEnvInt("CACHE_EXPIRED_HOUR", 24)) * time.Hour,

		// Device
		SyncServerURL:      getEnv("SYNC_SERVER_URL", "http://localhost:8080"),
		SyncToken:          getEnv("SYNC_TOKEN", ""),
		SyncAccessMode:     getEnv("SYNC_ACCESS_MODE", "authenticated"),
		SyncInterval:       time.Duration(getEnvInt("SYNC_INTERVAL_SEC", 30)) * time.Second,
		ReachProbeInterval: time.Duration(getEnvInt("REACH_PROBE_SEC", 15)) * time.Second,

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
