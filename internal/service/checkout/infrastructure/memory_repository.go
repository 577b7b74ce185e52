package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/service/checkout/domain"
)

// MemoryLockRepository 是 domain.LockRepository 的进程内实现，测试用。
// 与数据库实现保持相同的守卫语义：活动锁唯一、终态不可更新。
type MemoryLockRepository struct {
	mu        sync.Mutex
	locks     map[string]*domain.CheckoutLock
	snapshots map[string][]*domain.PriceSnapshot // key: lockID
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{
		locks:     make(map[string]*domain.CheckoutLock),
		snapshots: make(map[string][]*domain.PriceSnapshot),
	}
}

func (r *MemoryLockRepository) CreateLock(ctx context.Context, lock *domain.CheckoutLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.locks {
		if existing.CartID == lock.CartID && existing.IsActive() {
			return domain.NewConflictError(existing.ID, string(existing.State), "acquire")
		}
	}
	c := cloneLock(lock)
	r.locks[c.ID] = c
	return nil
}

func (r *MemoryLockRepository) GetLock(ctx context.Context, lockID string) (*domain.CheckoutLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[lockID]
	if !ok {
		return nil, domain.ErrLockNotFound
	}
	return cloneLock(lock), nil
}

func (r *MemoryLockRepository) GetLockByToken(ctx context.Context, token string) (*domain.CheckoutLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lock := range r.locks {
		if lock.LockToken == token {
			return cloneLock(lock), nil
		}
	}
	return nil, domain.ErrLockNotFound
}

func (r *MemoryLockRepository) FindActiveByCart(ctx context.Context, cartID string) (*domain.CheckoutLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lock := range r.locks {
		if lock.CartID == cartID && lock.IsActive() {
			return cloneLock(lock), nil
		}
	}
	return nil, nil
}

func (r *MemoryLockRepository) UpdateLock(ctx context.Context, lock *domain.CheckoutLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.locks[lock.ID]
	if !ok {
		return domain.ErrLockNotFound
	}
	if current.State.IsTerminal() {
		return domain.NewAlreadyTerminalError(current.ID, current.State)
	}
	r.locks[lock.ID] = cloneLock(lock)
	return nil
}

func (r *MemoryLockRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.CheckoutLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.CheckoutLock, 0)
	for _, lock := range r.locks {
		if lock.IsActive() && now.After(lock.ExpiresAt) {
			out = append(out, cloneLock(lock))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryLockRepository) SaveSnapshots(ctx context.Context, snapshots []*domain.PriceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snapshots {
		c := *s
		c.Breakdown = append([]domain.BreakdownEntry(nil), s.Breakdown...)
		r.snapshots[s.LockID] = append(r.snapshots[s.LockID], &c)
	}
	return nil
}

func (r *MemoryLockRepository) SnapshotsByLock(ctx context.Context, lockID string) ([]*domain.PriceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.snapshots[lockID]
	out := make([]*domain.PriceSnapshot, 0, len(stored))
	for _, s := range stored {
		c := *s
		c.Breakdown = append([]domain.BreakdownEntry(nil), s.Breakdown...)
		out = append(out, &c)
	}
	return out, nil
}

func cloneLock(l *domain.CheckoutLock) *domain.CheckoutLock {
	c := *l
	if l.FailureReason != nil {
		reason := *l.FailureReason
		c.FailureReason = &reason
	}
	if l.CompletedAt != nil {
		at := *l.CompletedAt
		c.CompletedAt = &at
	}
	if l.FailedAt != nil {
		at := *l.FailedAt
		c.FailedAt = &at
	}
	c.Metadata = make(map[string]string, len(l.Metadata))
	for k, v := range l.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
