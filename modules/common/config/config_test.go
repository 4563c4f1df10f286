package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"APP_PASSWORD", "VIDEO_POLL_INTERVAL", "VIDEO_TIMEOUT", "VIDEO_DEMO_FALLBACK", "QUEUE_BACKEND", "MAX_CONCURRENT_GENERATIONS", "VEO_MODEL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultAppPassword, cfg.AppPassword)
	assert.True(t, cfg.UsesDefaultPassword())
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.VideoTimeout)
	assert.False(t, cfg.DemoFallback)
	assert.Equal(t, DefaultVideoModel, cfg.VideoModel)
	assert.Equal(t, QueueBackendMemory, cfg.QueueBackend)
	assert.Equal(t, 4, cfg.MaxConcurrentGenerations)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("APP_PASSWORD", "letmein")
	t.Setenv("VIDEO_POLL_INTERVAL", "250ms")
	t.Setenv("VIDEO_DEMO_FALLBACK", "true")
	t.Setenv("QUEUE_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.UsesDefaultPassword())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.DemoFallback)
	assert.Equal(t, "cache:6380", cfg.GetRedisAddr())
}

func TestLoadConfig_RejectsUnknownQueueBackend(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "kafka")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "QUEUE_BACKEND")
}

func TestLoadConfig_IgnoresUnparsableValues(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "")
	t.Setenv("VIDEO_TIMEOUT", "forever")
	t.Setenv("MAX_CONCURRENT_GENERATIONS", "many")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.VideoTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentGenerations)
}
