package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/platform/logger"
)

func TestLoadDefaults(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	cfg := Load(log)
	require.Equal(t, "localhost", cfg.RedisHost)
	require.Equal(t, 6379, cfg.RedisPort)
	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, "round_robin", cfg.DefaultStrategy)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, http://b.test")

	log, err := logger.New("test")
	require.NoError(t, err)

	cfg := Load(log)
	require.Equal(t, "redis.internal", cfg.RedisHost)
	require.Equal(t, 9090, cfg.HTTPPort)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowOrigins)
}

func TestSplitCSVHandlesEmpty(t *testing.T) {
	require.Nil(t, splitCSV(""))
	require.Nil(t, splitCSV("   "))
}
