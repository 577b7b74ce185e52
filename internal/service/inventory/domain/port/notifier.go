// internal/service/inventory/domain/port/notifier.go
package port

import (
	"context"

	"storefront/internal/service/inventory/domain"
)

// AlertNotifier 是低库存告警的出站端口。
// 投递是尽力而为的：失败只记日志，绝不反向影响结算路径。
type AlertNotifier interface {
	// LowStockRaised 通知一条新产生的低库存告警。
	LowStockRaised(ctx context.Context, alert *domain.LowStockAlert) error

	// LowStockResolved 通知告警已解除。
	LowStockResolved(ctx context.Context, alert *domain.LowStockAlert) error
}
