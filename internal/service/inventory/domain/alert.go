// internal/service/inventory/domain/alert.go
package domain

import "time"

// LowStockAlert 是可售数量跌破补货点时产生的派生信号。
// 它不是库存的事实来源，每个水位同一时刻至多一条未解决告警。
type LowStockAlert struct {
	ID          string
	LevelID     string
	VariantID   string
	WarehouseID string

	CurrentQuantity int // 告警产生时的可售数量
	ReorderPoint    int

	IsResolved       bool
	NotificationSent bool
	NotifiedAt       *time.Time
	ResolvedAt       *time.Time
	ResolvedBy       string

	CreatedAt time.Time
}

// NewLowStockAlert 基于当前水位创建一条未解决告警。
func NewLowStockAlert(id string, l *InventoryLevel) *LowStockAlert {
	return &LowStockAlert{
		ID:              id,
		LevelID:         l.ID,
		VariantID:       l.VariantID,
		WarehouseID:     l.WarehouseID,
		CurrentQuantity: l.AvailableQuantity(),
		ReorderPoint:    l.ReorderPoint,
		CreatedAt:       time.Now(),
	}
}

// Resolve 关闭告警。resolvedBy 为空表示系统自动解决。
func (a *LowStockAlert) Resolve(resolvedBy string) {
	if a.IsResolved {
		return
	}
	now := time.Now()
	a.IsResolved = true
	a.ResolvedAt = &now
	if resolvedBy == "" {
		resolvedBy = "system"
	}
	a.ResolvedBy = resolvedBy
}

// MarkNotified 记录告警已投递给通知系统。
func (a *LowStockAlert) MarkNotified() {
	now := time.Now()
	a.NotificationSent = true
	a.NotifiedAt = &now
}
