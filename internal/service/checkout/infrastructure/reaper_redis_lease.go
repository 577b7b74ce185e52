package infrastructure

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/google/uuid"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/redis"
)

const (
	reaperLeaseKey    = "checkout:reaper:lease"
	releaseLeaseScript = "release_reaper_lease"

	// 对比持有者后再删除，避免误删别家续上的租约。
	releaseLeaseLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`
)

// RedisReaperLease 用 Redis SET NX PX 实现 reaper 的互斥租约。
// 多实例部署时同一轮扫描只有一个实例能拿到。
type RedisReaperLease struct {
	client *redis.Client
	ttl    time.Duration
	holder string
}

func NewRedisReaperLease(client *redis.Client, ttl time.Duration) (*RedisReaperLease, error) {
	if err := client.LoadScriptFromContent(releaseLeaseScript, releaseLeaseLua); err != nil {
		return nil, err
	}
	return &RedisReaperLease{
		client: client,
		ttl:    ttl,
		holder: uuid.New().String(),
	}, nil
}

func (l *RedisReaperLease) Acquire(ctx context.Context) (func(), bool, error) {
	ok, err := l.client.GetClient().SetNX(ctx, reaperLeaseKey, l.holder, l.ttl).Result()
	if err != nil && err != goredis.Nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		if _, err := l.client.RunScript(ctx, releaseLeaseScript, []string{reaperLeaseKey}, l.holder); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release reaper lease")
		}
	}
	return release, true, nil
}
