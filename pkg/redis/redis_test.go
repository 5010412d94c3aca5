package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationConfig() *Config {
	cfg := DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	if password := os.Getenv("TEST_REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 100, cfg.PoolSize)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestConfigAddr(t *testing.T) {
	cfg := &Config{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", cfg.Addr())
}

func TestNewClientConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "256.0.0.1"
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = 0
	cfg.RetryInterval = 10 * time.Millisecond

	_, err := NewClient(context.Background(), cfg)
	assert.Error(t, err)
}

func TestIsNoScriptError(t *testing.T) {
	assert.False(t, isNoScriptError(nil))
	assert.False(t, isNoScriptError(errors.New("connection refused")))
	assert.True(t, isNoScriptError(errors.New("NOSCRIPT No matching script. Please use EVAL.")))
}

func TestScriptCache_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, integrationConfig())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.HealthCheck(ctx))

	script := "return redis.call('SET', KEYS[1], ARGV[1])"
	sha, err := client.LoadScript(ctx, "test-set", script)
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	// First run hits the cached SHA; a second name goes through the
	// load-then-eval path.
	res := client.EvalWithFallback(ctx, "test-set", script, []string{"spotlight:test:key"}, "v1")
	require.NoError(t, res.Err())

	res = client.EvalWithFallback(ctx, "test-set-2", script, []string{"spotlight:test:key"}, "v2")
	require.NoError(t, res.Err())

	client.Client().Del(ctx, "spotlight:test:key")
}
