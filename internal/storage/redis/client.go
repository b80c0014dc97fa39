package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/hlk-radar/internal/config"
)

// ErrDisabled 未配置 redis.addr
var ErrDisabled = errors.New("redis is not enabled")

const defaultPingTimeout = 5 * time.Second

// Client 网关使用的 Redis 连接，携带快照键前缀与广播频道
type Client struct {
	*redis.Client
	prefix  string
	channel string
}

// NewClient 创建连接并探活，探活时长取 dialTimeout
func NewClient(ctx context.Context, cfg cfgpkg.RedisConfig) (*Client, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Client{Client: rdb, prefix: cfg.KeyPrefix, channel: cfg.Channel}, nil
}

// Snapshots 按配置的前缀与频道创建快照存储
func (c *Client) Snapshots() *SnapshotStore {
	return NewSnapshotStore(c.Client, c.prefix, c.channel)
}

func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck 供健康检查使用
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}
