// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/inventory/domain"
)

// GormInventoryRepository 是 domain.Repository 的 GORM 实现。
// 原子性由两层共同保证：事务边界（InTx）和 LevelForUpdate 的行级锁。
type GormInventoryRepository struct {
	db *gorm.DB
}

// NewGormInventoryRepository 创建一个新的 GORM 仓储实例
func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

// AutoMigrate 建表。仅供开发和测试环境使用，生产环境走迁移脚本。
func (r *GormInventoryRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&InventoryLevelModel{},
		&StockReservationModel{},
		&StockMovementModel{},
		&LowStockAlertModel{},
	)
}

// InTx 在一个数据库事务内执行 fn，fn 内通过绑定事务句柄的仓储访问数据。
func (r *GormInventoryRepository) InTx(ctx context.Context, fn func(store domain.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormInventoryRepository{db: tx})
	})
}

// LevelForUpdate 用 SELECT ... FOR UPDATE 读取并锁定水位行。
// 在事务外调用时退化为普通读取。
func (r *GormInventoryRepository) LevelForUpdate(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	var model InventoryLevelModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLevelNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load inventory level for update")
	}
	return ToDomainLevel(&model), nil
}

// GetLevel 普通读取，用于查询面。
func (r *GormInventoryRepository) GetLevel(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	var model InventoryLevelModel
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND warehouse_id = ?", variantID, warehouseID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLevelNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load inventory level")
	}
	return ToDomainLevel(&model), nil
}

// SaveLevel 回写水位的数量字段。
func (r *GormInventoryRepository) SaveLevel(ctx context.Context, level *domain.InventoryLevel) error {
	model := FromDomainLevel(level)
	err := r.db.WithContext(ctx).Model(&InventoryLevelModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"quantity":          model.Quantity,
			"reserved_quantity": model.ReservedQuantity,
			"updated_at":        model.UpdatedAt,
		}).Error
	return pkgerrors.Wrap(err, "failed to save inventory level")
}

// CreateLevel 建立一个新的 (variant, warehouse) 水位。
func (r *GormInventoryRepository) CreateLevel(ctx context.Context, level *domain.InventoryLevel) error {
	err := r.db.WithContext(ctx).Create(FromDomainLevel(level)).Error
	return pkgerrors.Wrap(err, "failed to create inventory level")
}

func (r *GormInventoryRepository) CreateReservation(ctx context.Context, res *domain.StockReservation) error {
	err := r.db.WithContext(ctx).Create(FromDomainReservation(res)).Error
	return pkgerrors.Wrap(err, "failed to create stock reservation")
}

func (r *GormInventoryRepository) SaveReservation(ctx context.Context, res *domain.StockReservation) error {
	err := r.db.WithContext(ctx).Save(FromDomainReservation(res)).Error
	return pkgerrors.Wrap(err, "failed to save stock reservation")
}

func (r *GormInventoryRepository) GetReservation(ctx context.Context, id string) (*domain.StockReservation, error) {
	var model StockReservationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load stock reservation")
	}
	return ToDomainReservation(&model), nil
}

func (r *GormInventoryRepository) ReservationsByLock(ctx context.Context, lockID string) ([]*domain.StockReservation, error) {
	var models []StockReservationModel
	err := r.db.WithContext(ctx).
		Where("reference_kind = ? AND reference_id = ?", string(domain.ReferenceLock), lockID).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list reservations by lock")
	}
	out := make([]*domain.StockReservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out, nil
}

func (r *GormInventoryRepository) CreateMovement(ctx context.Context, mv *domain.StockMovement) error {
	err := r.db.WithContext(ctx).Create(FromDomainMovement(mv)).Error
	return pkgerrors.Wrap(err, "failed to append stock movement")
}

func (r *GormInventoryRepository) MovementsByLevel(ctx context.Context, levelID string) ([]*domain.StockMovement, error) {
	var models []StockMovementModel
	err := r.db.WithContext(ctx).
		Where("level_id = ?", levelID).
		Order("movement_date ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list stock movements")
	}
	out := make([]*domain.StockMovement, 0, len(models))
	for i := range models {
		out = append(out, ToDomainMovement(&models[i]))
	}
	return out, nil
}

func (r *GormInventoryRepository) OpenAlert(ctx context.Context, levelID string) (*domain.LowStockAlert, error) {
	var model LowStockAlertModel
	err := r.db.WithContext(ctx).
		Where("level_id = ? AND is_resolved = ?", levelID, false).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to load open alert")
	}
	return ToDomainAlert(&model), nil
}

func (r *GormInventoryRepository) CreateAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	err := r.db.WithContext(ctx).Create(FromDomainAlert(alert)).Error
	return pkgerrors.Wrap(err, "failed to create low stock alert")
}

func (r *GormInventoryRepository) SaveAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	err := r.db.WithContext(ctx).Save(FromDomainAlert(alert)).Error
	return pkgerrors.Wrap(err, "failed to save low stock alert")
}
