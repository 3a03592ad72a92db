package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ratelimit-service/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client wraps the go-redis client with connection supervision: a periodic
// health check and automatic reconnection with exponential backoff. The rate
// limiter fails open while the connection is down, so recovery here is about
// restoring enforcement, not availability.
type Client struct {
	config config.RedisConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	client      *redis.Client
	isConnected bool

	reconnectCh chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

type HealthStatus struct {
	IsConnected  bool          `json:"isConnected"`
	LastPing     time.Time     `json:"lastPing"`
	ResponseTime time.Duration `json:"responseTime"`
	Addr         string        `json:"addr"`
	Error        string        `json:"error,omitempty"`
}

func NewClient(cfg config.RedisConfig, logger zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:      cfg,
		logger:      logger,
		reconnectCh: make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	c.connect()
	go c.healthCheckLoop()
	go c.reconnectLoop()

	return c
}

func (c *Client) connect() {
	opt := c.options()

	c.mu.Lock()
	c.client = redis.NewClient(opt)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.GetClient().Ping(ctx).Err()

	c.mu.Lock()
	c.isConnected = err == nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("addr", opt.Addr).Msg("redis connection failed")
	} else {
		c.logger.Info().Str("addr", opt.Addr).Msg("redis connected")
	}
}

func (c *Client) options() *redis.Options {
	var opt *redis.Options
	if c.config.URL != "" {
		parsed, err := redis.ParseURL(c.config.URL)
		if err == nil {
			opt = parsed
		} else {
			c.logger.Warn().Err(err).Msg("invalid REDIS_URL, falling back to host:port")
		}
	}
	if opt == nil {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%s", c.config.Host, c.config.Port),
			Password: c.config.Password,
			DB:       c.config.DB,
		}
	}

	opt.PoolSize = c.config.PoolSize
	opt.MinIdleConns = c.config.MinIdleConns
	opt.MaxRetries = c.config.MaxRetries
	opt.MinRetryBackoff = c.config.RetryDelay
	opt.DialTimeout = c.config.DialTimeout
	opt.ReadTimeout = c.config.ReadTimeout
	opt.WriteTimeout = c.config.WriteTimeout
	opt.PoolTimeout = c.config.PoolTimeout
	return opt
}

// GetClient returns the underlying go-redis client.
func (c *Client) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// HealthCheck pings the server and updates the connection state.
func (c *Client) HealthCheck() HealthStatus {
	client := c.GetClient()
	status := HealthStatus{Addr: c.options().Addr}

	if client == nil {
		status.Error = "redis client not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx).Err()
	status.ResponseTime = time.Since(start)
	status.LastPing = time.Now()

	c.mu.Lock()
	c.isConnected = err == nil
	c.mu.Unlock()

	if err != nil {
		status.Error = err.Error()
		c.triggerReconnect()
	} else {
		status.IsConnected = true
	}
	return status
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
		// reconnection already pending
	}
}

func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			status := c.HealthCheck()
			if !status.IsConnected {
				c.logger.Warn().Str("error", status.Error).Msg("redis health check failed")
			}
		}
	}
}

func (c *Client) reconnectLoop() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectCh:
			if c.IsConnected() {
				continue
			}

			c.logger.Info().Msg("reconnecting to redis")

			c.mu.Lock()
			if c.client != nil {
				c.client.Close()
			}
			c.mu.Unlock()

			c.connect()

			if !c.IsConnected() {
				c.logger.Warn().Dur("backoff", backoff).Msg("reconnect failed, will retry")
				time.Sleep(backoff)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				c.triggerReconnect()
			} else {
				backoff = time.Second
			}
		}
	}
}

// PoolStats reports connection pool counters for the health endpoint.
func (c *Client) PoolStats() map[string]interface{} {
	client := c.GetClient()
	if client == nil {
		return map[string]interface{}{"error": "redis client not initialized"}
	}

	stats := client.PoolStats()
	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"totalConns":  stats.TotalConns,
		"idleConns":   stats.IdleConns,
		"staleConns":  stats.StaleConns,
		"isConnected": c.IsConnected(),
	}
}

// Close stops the supervision loops and closes the connection.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
