// internal/service/inventory/domain/repository.go
package domain

import "context"

// Store 定义了库存子域在一个事务边界内可见的持久化操作。
// 它位于领域层，但由基础设施层实现。
type Store interface {
	// LevelForUpdate 读取水位并在存储层面锁定该行（数据库实现为 SELECT ... FOR UPDATE）。
	LevelForUpdate(ctx context.Context, variantID, warehouseID string) (*InventoryLevel, error)

	// GetLevel 是不加锁的普通读取，用于查询面。
	GetLevel(ctx context.Context, variantID, warehouseID string) (*InventoryLevel, error)

	// SaveLevel 回写水位的数量字段。
	SaveLevel(ctx context.Context, level *InventoryLevel) error

	CreateReservation(ctx context.Context, res *StockReservation) error
	SaveReservation(ctx context.Context, res *StockReservation) error
	GetReservation(ctx context.Context, id string) (*StockReservation, error)
	ReservationsByLock(ctx context.Context, lockID string) ([]*StockReservation, error)

	// CreateMovement 追加一条流水。流水是只追加的，没有更新操作。
	CreateMovement(ctx context.Context, mv *StockMovement) error
	MovementsByLevel(ctx context.Context, levelID string) ([]*StockMovement, error)

	// OpenAlert 返回水位当前未解决的告警，没有时返回 (nil, nil)。
	OpenAlert(ctx context.Context, levelID string) (*LowStockAlert, error)
	CreateAlert(ctx context.Context, alert *LowStockAlert) error
	SaveAlert(ctx context.Context, alert *LowStockAlert) error
}

// Repository 在 Store 的基础上提供事务执行能力。
// fn 内的所有写操作要么一起提交，要么一起回滚。
type Repository interface {
	Store

	InTx(ctx context.Context, fn func(store Store) error) error
}
