// internal/service/inventory/domain/level.go
package domain

import (
	"errors"
	"time"
)

// StockStatus 是库存水位的派生状态。
type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// InventoryLevel 是一个 (variant, warehouse) 组合的当前库存状态。
// ReservedQuantity 只能经由库存引擎的原子调整路径变更，
// 任何直接字段赋值都会破坏它与预占记录之和的一致性。
type InventoryLevel struct {
	ID          string
	VariantID   string
	WarehouseID string

	Quantity         int // 在库数量
	ReservedQuantity int // 已预占数量
	IncomingQuantity int // 在途数量
	DamagedQuantity  int // 损坏数量
	PreorderQuantity int // 预售数量

	BackorderLimit   int // 缺货仍可超卖的上限
	ReorderPoint     int // 低库存告警阈值
	SafetyStockLevel int
	ReorderQuantity  int // 补货批量

	UpdatedAt time.Time
}

// AvailableQuantity 返回当前可售数量：在库减去已预占，不为负。
func (l *InventoryLevel) AvailableQuantity() int {
	available := l.Quantity - l.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// ReservableQuantity 返回还能被预占的数量，包含 backorder 余量。
func (l *InventoryLevel) ReservableQuantity() int {
	headroom := l.Quantity + l.BackorderLimit - l.ReservedQuantity
	if headroom < 0 {
		return 0
	}
	return headroom
}

// Status 返回派生库存状态。
func (l *InventoryLevel) Status() StockStatus {
	available := l.AvailableQuantity()
	switch {
	case available <= 0:
		return StockStatusOutOfStock
	case available < l.ReorderPoint:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// Reserve 在水位上占用 quantity 个单位。
// 余量不足时返回 InsufficientStockError，并携带缺口数量。
func (l *InventoryLevel) Reserve(quantity int) error {
	if quantity <= 0 {
		return errors.New("reserve quantity must be positive")
	}
	reservable := l.ReservableQuantity()
	if quantity > reservable {
		return &InsufficientStockError{
			VariantID:   l.VariantID,
			WarehouseID: l.WarehouseID,
			Requested:   quantity,
			Available:   reservable,
			Shortfall:   quantity - reservable,
		}
	}
	l.ReservedQuantity += quantity
	l.UpdatedAt = time.Now()
	return nil
}

// ReleaseReserved 归还 quantity 个已预占单位。
// ReservedQuantity 永不为负，超量归还说明上游出现重复释放，直接截断。
func (l *InventoryLevel) ReleaseReserved(quantity int) {
	l.ReservedQuantity -= quantity
	if l.ReservedQuantity < 0 {
		l.ReservedQuantity = 0
	}
	l.UpdatedAt = time.Now()
}

// AdjustOnHand 调整在库数量。
// 调整后在库加 backorder 余量不得低于已预占数量，否则违反预占不变式。
func (l *InventoryLevel) AdjustOnHand(delta int) error {
	next := l.Quantity + delta
	if next+l.BackorderLimit < l.ReservedQuantity {
		return errors.New("adjustment would leave reserved quantity uncovered")
	}
	l.Quantity = next
	l.UpdatedAt = time.Now()
	return nil
}
