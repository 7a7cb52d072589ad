// Package config centralizes the environment-derived settings for both the
// gateway process and the worker runtime.
package config

import (
	"strings"
	"time"

	"github.com/devenwen/callme-gate/internal/platform/envutil"
	"github.com/devenwen/callme-gate/internal/platform/logger"
)

// Config holds every knob read from the process environment. Gateway-only
// and worker-only fields are both present; each binary reads the subset it
// needs.
type Config struct {
	// Redis connection.
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	RedisUseSSL   bool

	// Gateway.
	HTTPPort        int
	JobRecordTTL    time.Duration
	AllowOrigins    []string
	NodeMaxAge      time.Duration
	ReapInterval    time.Duration
	SeedFile        string
	DefaultStrategy string

	// Worker.
	HeartbeatInterval time.Duration

	// Ambient.
	LogMode     string
	OTLPEnabled bool
}

// Load reads the full Config from the process environment, logging which
// values fell back to defaults.
func Load(log *logger.Logger) Config {
	return Config{
		RedisHost:     envutil.GetEnv("REDIS_HOST", "localhost", log),
		RedisPort:     envutil.GetEnvAsInt("REDIS_PORT", 6379, log),
		RedisDB:       envutil.GetEnvAsInt("REDIS_DB", 0, log),
		RedisPassword: envutil.GetEnv("REDIS_PASSWORD", "", log),
		RedisUseSSL:   envutil.GetEnvAsBool("REDIS_USE_SSL", false, log),

		HTTPPort:        envutil.GetEnvAsInt("HTTP_PORT", 8080, log),
		JobRecordTTL:    envutil.GetEnvAsDuration("JOB_RECORD_TTL", 60*time.Second, log),
		AllowOrigins:    splitCSV(envutil.GetEnv("CORS_ALLOW_ORIGINS", "", log)),
		NodeMaxAge:      envutil.GetEnvAsDuration("NODE_MAX_AGE", 90*time.Second, log),
		ReapInterval:    envutil.GetEnvAsDuration("REAP_INTERVAL", 30*time.Second, log),
		SeedFile:        envutil.GetEnv("SEED_FILE", "", log),
		DefaultStrategy: envutil.GetEnv("DEFAULT_STRATEGY", "round_robin", log),

		HeartbeatInterval: envutil.GetEnvAsDuration("HEARTBEAT_INTERVAL", 15*time.Second, log),

		LogMode:     envutil.GetEnv("LOG_MODE", "development", log),
		OTLPEnabled: envutil.GetEnvAsBool("OTEL_ENABLED", false, log),
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
