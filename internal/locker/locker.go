// internal/locker/locker.go
package locker

import (
	"context"
	"hash/fnv"
	"sync"
)

// KeyedLocker 为某个资源 key 提供互斥保护。
// 库存引擎用它来保证对同一个 (variant, warehouse) 库存水位的
// 读取-计算-写入是一个原子步骤。
type KeyedLocker interface {
	// Lock 阻塞直到拿到 key 对应的锁，返回释放函数。
	// ctx 取消时放弃等待并返回错误。
	Lock(ctx context.Context, key string) (func(), error)
}

const shardCount = 128

// Sharded 是单进程部署下的 KeyedLocker 实现。
// key 经 FNV 哈希映射到固定数量的分片互斥锁上，
// 不同 key 大概率互不阻塞，同一 key 一定互斥。
type Sharded struct {
	shards [shardCount]sync.Mutex
}

// NewSharded 创建一个进程内分片锁。
func NewSharded() *Sharded {
	return &Sharded{}
}

func (s *Sharded) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &s.shards[h.Sum32()%shardCount]
	mu.Lock()
	return mu.Unlock, nil
}
