package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutLock 是结算流程的聚合根。
// 同一购物车同一时刻最多存在一把活动锁（pending / locking_prices / authorizing），
// 唯一性由仓储层在创建时保证。
type CheckoutLock struct {
	ID        string
	CartID    string
	SessionID string
	UserID    string

	// LockToken 在创建时随机生成，调用方后续操作都必须回传它。
	LockToken string

	State LockState

	// Phase 标记锁当前正在执行（或失败于）的环节，空值表示尚未进入任何环节。
	Phase         Phase
	FailureReason *FailureReason

	// 冻结价格的币种与汇总，最小货币单位（分）。
	CurrencyCode string
	TotalAmount  int64

	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	Metadata map[string]string
}

// NewCheckoutLock 创建一把 pending 状态的新锁。
func NewCheckoutLock(cartID, sessionID, userID, currencyCode string, ttl time.Duration) *CheckoutLock {
	now := time.Now()
	return &CheckoutLock{
		ID:           uuid.New().String(),
		CartID:       cartID,
		SessionID:    sessionID,
		UserID:       userID,
		LockToken:    uuid.New().String(),
		State:        StatePending,
		CurrencyCode: currencyCode,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     make(map[string]string),
	}
}

// IsExpired 判断锁在给定时刻是否已过期。终态锁永不过期。
func (l *CheckoutLock) IsExpired(now time.Time) bool {
	if l.State.IsTerminal() {
		return false
	}
	return now.After(l.ExpiresAt)
}

// IsActive 活动锁指尚未进入终态的锁。
func (l *CheckoutLock) IsActive() bool {
	return !l.State.IsTerminal()
}

// BeginPricing pending -> locking_prices，锁进入定价环节。
func (l *CheckoutLock) BeginPricing() error {
	if err := l.transition(StatePending, StateLockingPrices); err != nil {
		return err
	}
	l.Phase = PhasePricing
	return nil
}

// BeginReserving 定价完成，进入库存占用环节。状态仍停留在 locking_prices。
func (l *CheckoutLock) BeginReserving() error {
	if l.State.IsTerminal() {
		return NewAlreadyTerminalError(l.ID, l.State)
	}
	if l.State != StateLockingPrices {
		return NewConflictError(l.ID, string(l.State), string(StateLockingPrices))
	}
	l.Phase = PhaseStock
	l.UpdatedAt = time.Now()
	return nil
}

// MarkAuthorizing locking_prices -> authorizing，落下冻结总价并进入支付环节。
func (l *CheckoutLock) MarkAuthorizing(totalAmount int64) error {
	if err := l.transition(StateLockingPrices, StateAuthorizing); err != nil {
		return err
	}
	l.TotalAmount = totalAmount
	l.Phase = PhasePayment
	return nil
}

// MarkCompleted authorizing -> completed。终态，环节清空。
func (l *CheckoutLock) MarkCompleted() error {
	if err := l.transition(StateAuthorizing, StateCompleted); err != nil {
		return err
	}
	now := time.Now()
	l.CompletedAt = &now
	l.Phase = ""
	return nil
}

// MarkFailed 任意非终态 -> failed，记录结构化失败原因并落下失败时刻。
func (l *CheckoutLock) MarkFailed(reason FailureReason) error {
	if l.State.IsTerminal() {
		return NewAlreadyTerminalError(l.ID, l.State)
	}
	now := time.Now()
	l.State = StateFailed
	l.Phase = reason.Phase
	l.FailureReason = &reason
	l.FailedAt = &now
	l.UpdatedAt = now
	return nil
}

func (l *CheckoutLock) transition(from, to LockState) error {
	if l.State.IsTerminal() {
		return NewAlreadyTerminalError(l.ID, l.State)
	}
	if l.State != from {
		return NewConflictError(l.ID, string(l.State), string(to))
	}
	l.State = to
	l.UpdatedAt = time.Now()
	return nil
}
