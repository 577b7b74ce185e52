package domain

import (
	"context"
	"time"
)

// LockRepository 结算锁与价格快照的持久化端口。
type LockRepository interface {
	// CreateLock 创建新锁。同一 cart 已存在活动锁时返回 *ConflictError。
	CreateLock(ctx context.Context, lock *CheckoutLock) error

	GetLock(ctx context.Context, lockID string) (*CheckoutLock, error)
	GetLockByToken(ctx context.Context, token string) (*CheckoutLock, error)

	// FindActiveByCart 返回购物车当前的活动锁，没有时返回 (nil, nil)。
	FindActiveByCart(ctx context.Context, cartID string) (*CheckoutLock, error)

	// UpdateLock 带守卫的更新：持久化中的锁已是终态时拒绝，
	// 返回 *AlreadyTerminalError，内存中的修改不落盘。
	UpdateLock(ctx context.Context, lock *CheckoutLock) error

	// ListExpired 返回在 now 之前过期且仍处于活动状态的锁，最多 limit 条。
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*CheckoutLock, error)

	// SaveSnapshots 批量写入快照，全部成功或全部不写。
	SaveSnapshots(ctx context.Context, snapshots []*PriceSnapshot) error
	SnapshotsByLock(ctx context.Context, lockID string) ([]*PriceSnapshot, error)
}
