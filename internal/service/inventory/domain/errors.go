// internal/service/inventory/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLevelNotFound 表示 (variant, warehouse) 没有建立库存水位。
	ErrLevelNotFound = errors.New("inventory level not found")
	// ErrReservationNotFound 表示预占记录不存在。
	ErrReservationNotFound = errors.New("stock reservation not found")
)

// InsufficientStockError 表示请求数量超出可预占余量，携带逐项缺口。
type InsufficientStockError struct {
	VariantID   string
	WarehouseID string
	Requested   int
	Available   int
	Shortfall   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s in warehouse %s: requested %d, available %d (shortfall %d)",
		e.VariantID, e.WarehouseID, e.Requested, e.Available, e.Shortfall)
}

// IsInsufficientStock 判断 err 链上是否存在库存不足错误。
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
