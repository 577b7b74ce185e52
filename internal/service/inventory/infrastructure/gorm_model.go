// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"
)

// InventoryLevelModel 对应数据库中的 inventory_level 表
type InventoryLevelModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	VariantID   string `gorm:"size:64;uniqueIndex:idx_variant_warehouse"`
	WarehouseID string `gorm:"size:64;uniqueIndex:idx_variant_warehouse"`

	Quantity         int
	ReservedQuantity int
	IncomingQuantity int
	DamagedQuantity  int
	PreorderQuantity int
	BackorderLimit   int
	ReorderPoint     int
	SafetyStockLevel int
	ReorderQuantity  int

	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (InventoryLevelModel) TableName() string {
	return "inventory_level"
}

// StockReservationModel 对应数据库中的 stock_reservation 表
type StockReservationModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	VariantID   string `gorm:"size:64;index"`
	WarehouseID string `gorm:"size:64"`
	LevelID     string `gorm:"size:36;index"`

	Quantity         int
	ReservedQuantity int
	Status           string `gorm:"size:32"`

	ReferenceKind string `gorm:"size:16;index:idx_reservation_reference"`
	ReferenceID   string `gorm:"size:64;index:idx_reservation_reference"`
	LockToken     string `gorm:"size:64;index"`
	SessionID     string `gorm:"size:64"`
	UserID        string `gorm:"size:64"`

	LockedAt      time.Time
	LockExpiresAt time.Time
	ExpiresAt     time.Time
	IsReleased    bool `gorm:"index"`
	ReleasedAt    *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockReservationModel) TableName() string {
	return "stock_reservation"
}

// StockMovementModel 对应数据库中的 stock_movement 表。
// 该表只追加，不更新。
type StockMovementModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	VariantID   string `gorm:"size:64"`
	WarehouseID string `gorm:"size:64"`
	LevelID     string `gorm:"size:36;index:idx_movement_level_date"`

	Type  string `gorm:"size:32"`
	Delta int

	QuantityBefore  int
	QuantityAfter   int
	ReservedBefore  int
	ReservedAfter   int
	AvailableBefore int
	AvailableAfter  int

	ReferenceKind string `gorm:"size:16"`
	ReferenceID   string `gorm:"size:64;index"`
	Reason        string `gorm:"size:255"`
	ActorID       string `gorm:"size:64"`

	MovementDate time.Time `gorm:"index:idx_movement_level_date"`
}

// TableName 指定 GORM 应该使用的表名
func (StockMovementModel) TableName() string {
	return "stock_movement"
}

// LowStockAlertModel 对应数据库中的 low_stock_alert 表
type LowStockAlertModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	LevelID     string `gorm:"size:36;index:idx_alert_level_open"`
	VariantID   string `gorm:"size:64"`
	WarehouseID string `gorm:"size:64"`

	CurrentQuantity int
	ReorderPoint    int

	IsResolved       bool `gorm:"index:idx_alert_level_open"`
	NotificationSent bool
	NotifiedAt       *time.Time
	ResolvedAt       *time.Time
	ResolvedBy       string `gorm:"size:64"`

	CreatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (LowStockAlertModel) TableName() string {
	return "low_stock_alert"
}
