package infrastructure

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/checkout/domain"
)

var activeStates = []string{
	string(domain.StatePending),
	string(domain.StateLockingPrices),
	string(domain.StateAuthorizing),
}

// GormLockRepository 是 domain.LockRepository 的 GORM 实现。
// "每个购物车最多一把活动锁"由 active_cart_id 上的唯一索引保证，
// 终态写回时把该列清空，让后续的锁可以插入。
type GormLockRepository struct {
	db *gorm.DB
}

// NewGormLockRepository 创建一个新的 GORM 仓储实例
func NewGormLockRepository(db *gorm.DB) *GormLockRepository {
	return &GormLockRepository{db: db}
}

// AutoMigrate 建表。仅供开发和测试环境使用，生产环境走迁移脚本。
func (r *GormLockRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&CheckoutLockModel{}, &PriceSnapshotModel{})
}

func (r *GormLockRepository) CreateLock(ctx context.Context, lock *domain.CheckoutLock) error {
	model, err := toLockModel(lock)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to map checkout lock")
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.NewConflictError(lock.ID, "active", "acquire")
		}
		return pkgerrors.Wrap(err, "failed to create checkout lock")
	}
	return nil
}

func (r *GormLockRepository) GetLock(ctx context.Context, lockID string) (*domain.CheckoutLock, error) {
	return r.findOne(ctx, "id = ?", lockID)
}

func (r *GormLockRepository) GetLockByToken(ctx context.Context, token string) (*domain.CheckoutLock, error) {
	return r.findOne(ctx, "lock_token = ?", token)
}

func (r *GormLockRepository) findOne(ctx context.Context, query string, arg any) (*domain.CheckoutLock, error) {
	var model CheckoutLockModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLockNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to load checkout lock")
	}
	return toLockDomain(&model)
}

func (r *GormLockRepository) FindActiveByCart(ctx context.Context, cartID string) (*domain.CheckoutLock, error) {
	var model CheckoutLockModel
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND state IN ?", cartID, activeStates).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to query active lock")
	}
	return toLockDomain(&model)
}

// UpdateLock 带守卫的写回：WHERE 条件排除终态行，更新不到任何行时
// 再读一次区分"锁已终态"和"锁不存在"。
func (r *GormLockRepository) UpdateLock(ctx context.Context, lock *domain.CheckoutLock) error {
	model, err := toLockModel(lock)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to map checkout lock")
	}

	res := r.db.WithContext(ctx).
		Model(&CheckoutLockModel{}).
		Where("id = ? AND state IN ?", lock.ID, activeStates).
		Updates(map[string]interface{}{
			"active_cart_id": model.ActiveCartID,
			"state":          model.State,
			"phase":          model.Phase,
			"failure_reason": model.FailureReason,
			"total_amount":   model.TotalAmount,
			"expires_at":     model.ExpiresAt,
			"updated_at":     model.UpdatedAt,
			"completed_at":   model.CompletedAt,
			"failed_at":      model.FailedAt,
			"metadata":       model.Metadata,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "failed to update checkout lock")
	}
	if res.RowsAffected == 0 {
		current, err := r.GetLock(ctx, lock.ID)
		if err != nil {
			return err
		}
		return domain.NewAlreadyTerminalError(current.ID, current.State)
	}
	return nil
}

func (r *GormLockRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.CheckoutLock, error) {
	var models []CheckoutLockModel
	err := r.db.WithContext(ctx).
		Where("state IN ? AND expires_at < ?", activeStates, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list expired locks")
	}
	out := make([]*domain.CheckoutLock, 0, len(models))
	for i := range models {
		lock, err := toLockDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, lock)
	}
	return out, nil
}

// SaveSnapshots 在一个事务里写入整个批次。
func (r *GormLockRepository) SaveSnapshots(ctx context.Context, snapshots []*domain.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	models := make([]*PriceSnapshotModel, 0, len(snapshots))
	for _, s := range snapshots {
		m, err := toSnapshotModel(s)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to map price snapshot")
		}
		models = append(models, m)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to save price snapshots")
		}
		return nil
	})
}

func (r *GormLockRepository) SnapshotsByLock(ctx context.Context, lockID string) ([]*domain.PriceSnapshot, error) {
	var models []PriceSnapshotModel
	err := r.db.WithContext(ctx).
		Where("lock_id = ?", lockID).
		Order("frozen_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list price snapshots")
	}
	out := make([]*domain.PriceSnapshot, 0, len(models))
	for i := range models {
		s, err := toSnapshotDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
