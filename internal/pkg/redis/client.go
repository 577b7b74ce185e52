// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client 是 go-redis 的一层薄封装，额外维护了一个命名 Lua 脚本注册表。
// 业务侧通过脚本名调用，避免在各处散落脚本内容和 SHA 管理。
type Client struct {
	rdb redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建一个 Redis 客户端。
// addrs 是逗号分隔的地址列表，单个地址时走单机模式，多个地址时走集群模式。
func NewClient(addrs string) (*Client, error) {
	list := strings.Split(addrs, ",")
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: list,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis %q: %w", addrs, err)
	}
	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// GetClient 暴露底层客户端，用于脚本之外的普通命令。
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// LoadScriptFromContent 以指定名字注册一段 Lua 脚本。
// go-redis 的 Script 会在首次 EVALSHA 失败时自动回退到 EVAL。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q has empty content", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// RunScript 按名字执行已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
