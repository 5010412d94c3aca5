package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns a local-development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		DB:            0,
		PoolSize:      100,
		MinIdleConns:  10,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Addr returns the host:port address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps go-redis with a Lua script cache. The lock repository runs its
// acquire/release scripts through EvalWithFallback so a Redis restart (which
// flushes the script cache) never turns into a hard failure.
type Client struct {
	client  *redis.Client
	config  *Config
	scripts sync.Map // script name -> sha
}

// NewClient connects to Redis, retrying on startup so the service and Redis
// can come up in any order.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(cfg.RetryInterval)
		}
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return &Client{client: client, config: cfg}, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// Client exposes the underlying go-redis client for callers that want the raw
// command surface (the idempotency middleware).
func (c *Client) Client() *redis.Client {
	return c.client
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck pings Redis with a bounded timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// LoadScript loads a Lua script and caches its SHA under the given name.
func (c *Client) LoadScript(ctx context.Context, name, script string) (string, error) {
	sha, err := c.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", name, err)
	}
	c.scripts.Store(name, sha)
	return sha, nil
}

func (c *Client) scriptSHA(name string) (string, bool) {
	if sha, ok := c.scripts.Load(name); ok {
		return sha.(string), true
	}
	return "", false
}

// EvalWithFallback runs a cached script by SHA, reloading it from source when
// the SHA is unknown (first use) or the server answers NOSCRIPT.
func (c *Client) EvalWithFallback(ctx context.Context, name, script string, keys []string, args ...interface{}) *redis.Cmd {
	sha, ok := c.scriptSHA(name)
	if !ok {
		loaded, err := c.LoadScript(ctx, name, script)
		if err != nil {
			cmd := redis.NewCmd(ctx)
			cmd.SetErr(err)
			return cmd
		}
		sha = loaded
	}

	result := c.client.EvalSha(ctx, sha, keys, args...)
	if result.Err() != nil && isNoScriptError(result.Err()) {
		if loaded, err := c.LoadScript(ctx, name, script); err == nil {
			return c.client.EvalSha(ctx, loaded, keys, args...)
		}
	}
	return result
}

func isNoScriptError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}
