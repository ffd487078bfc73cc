package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
)

// Store JSON 键值缓存
type Store interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// Client go-redis 封装
type Client struct {
	client *redis.Client
	prefix string
	log    *logrus.Entry
}

var _ Store = (*Client)(nil)

// NewClient 连接 redis，连接失败直接返回错误
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logger.For("cache")
	log.WithField("addr", cfg.Addr).Info("Redis 客户端初始化完成")
	return &Client{client: rdb, prefix: "company_radar:", log: log}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}

// SetJSON 序列化后写入
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache %s: %w", key, err)
	}
	c.log.WithField("key", key).Debug("写入缓存")
	return nil
}

// GetJSON 读取并反序列化，未命中返回 false
func (c *Client) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache %s: %w", key, err)
	}
	return true, nil
}

// Hash 生成缓存键使用的摘要
func Hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
