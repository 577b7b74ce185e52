package port

import (
	"context"

	"storefront/internal/service/checkout/domain"
)

// NotificationProducer 向下游广播结算锁的终态事件。
// 发送失败只记录日志，不影响主流程。
type NotificationProducer interface {
	LockCompleted(ctx context.Context, lock *domain.CheckoutLock) error
	LockFailed(ctx context.Context, lock *domain.CheckoutLock) error
}
