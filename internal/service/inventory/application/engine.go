// internal/service/inventory/application/engine.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/locker"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/domain/port"
)

var (
	reservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_inventory_reservations_total",
		Help: "Number of stock reservations granted.",
	})
	stockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_inventory_stock_conflicts_total",
		Help: "Number of reserve attempts denied for insufficient stock.",
	})
	adjustmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_inventory_adjustments_total",
		Help: "Number of manual inventory adjustments applied.",
	})
	lowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_inventory_low_stock_alerts_total",
		Help: "Number of low stock alerts raised.",
	})
)

// Engine 是库存账本与预占引擎。
// 所有对 InventoryLevel 的变更都从这里走：同一水位的读取-计算-写入
// 被 KeyedLocker 与存储层事务（数据库实现下还有行锁）共同保证为原子步骤，
// 两个并发的 Reserve 不可能看到同一个"可售数量"并同时成功。
type Engine struct {
	repo     domain.Repository
	locks    locker.KeyedLocker
	notifier port.AlertNotifier // 可为 nil，纯计算场景下不通知
	tracer   trace.Tracer
}

// NewEngine 创建库存引擎。
func NewEngine(repo domain.Repository, locks locker.KeyedLocker, notifier port.AlertNotifier, tracer trace.Tracer) *Engine {
	return &Engine{
		repo:     repo,
		locks:    locks,
		notifier: notifier,
		tracer:   tracer,
	}
}

// ReserveLine 是一次预占请求中的一行。
type ReserveLine struct {
	VariantID   string
	WarehouseID string
	Quantity    int
}

// ReserveCommand 描述一次结算锁（或人工操作）发起的批量预占。
type ReserveCommand struct {
	Owner         domain.Reference
	LockToken     string
	SessionID     string
	UserID        string
	LockExpiresAt time.Time
	Lines         []ReserveLine
}

// AdjustCommand 描述一次非结算路径的人工库存修正。
type AdjustCommand struct {
	VariantID   string
	WarehouseID string
	Delta       int
	Reason      string
	Actor       domain.Reference
}

func levelKey(variantID, warehouseID string) string {
	return variantID + "|" + warehouseID
}

// Reserve 为一个归属方批量占用库存，全有或全无：
// 任何一行失败时，本次调用已经占成功的行会被回滚，然后返回失败原因。
func (e *Engine) Reserve(ctx context.Context, cmd ReserveCommand) ([]*domain.StockReservation, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner", cmd.Owner.String()),
		attribute.Int("lines", len(cmd.Lines)),
	)

	if len(cmd.Lines) == 0 {
		return nil, fmt.Errorf("reserve command for %s has no lines", cmd.Owner)
	}

	created := make([]*domain.StockReservation, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		res, err := e.reserveLine(ctx, cmd, line)
		if err != nil {
			// 全有或全无：回滚本次调用已经占用的行
			for _, r := range created {
				if rerr := e.Release(ctx, r.ID); rerr != nil {
					logger.Ctx(ctx).Error().Err(rerr).
						Str("reservation_id", r.ID).
						Msg("CRITICAL: failed to roll back reservation after partial reserve")
				}
			}
			if _, ok := domain.IsInsufficientStock(err); ok {
				stockConflictsTotal.Inc()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock reservation failed")
			return nil, err
		}
		created = append(created, res)
	}

	reservationsTotal.Add(float64(len(created)))
	span.AddEvent("All lines reserved successfully")
	return created, nil
}

func (e *Engine) reserveLine(ctx context.Context, cmd ReserveCommand, line ReserveLine) (*domain.StockReservation, error) {
	var res *domain.StockReservation
	err := e.withLevel(ctx, line.VariantID, line.WarehouseID, func(store domain.Store, level *domain.InventoryLevel) error {
		mv := domain.NewMovement(uuid.New().String(), level, domain.MovementTypeSale, -line.Quantity, cmd.Owner, "checkout reservation", cmd.UserID)
		if err := level.Reserve(line.Quantity); err != nil {
			return err
		}

		now := time.Now()
		res = &domain.StockReservation{
			ID:               uuid.New().String(),
			VariantID:        line.VariantID,
			WarehouseID:      line.WarehouseID,
			LevelID:          level.ID,
			Quantity:         line.Quantity,
			ReservedQuantity: line.Quantity,
			Status:           domain.ReservationStatusCartHeld,
			Reference:        cmd.Owner,
			LockToken:        cmd.LockToken,
			SessionID:        cmd.SessionID,
			UserID:           cmd.UserID,
			LockedAt:         now,
			LockExpiresAt:    cmd.LockExpiresAt,
			ExpiresAt:        cmd.LockExpiresAt,
		}
		if cmd.Owner.Kind == domain.ReferenceManual {
			res.Status = domain.ReservationStatusManual
		}

		if err := store.CreateReservation(ctx, res); err != nil {
			return err
		}
		mv.Complete(level)
		return store.CreateMovement(ctx, mv)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Release 归还一条预占。幂等：已释放的预占上重复调用是空操作，
// 不会产生第二条回冲流水。
func (e *Engine) Release(ctx context.Context, reservationID string) error {
	ctx, span := e.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID))

	res, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if res.IsReleased {
		span.AddEvent("Reservation already released, no-op")
		return nil
	}

	return e.withLevel(ctx, res.VariantID, res.WarehouseID, func(store domain.Store, level *domain.InventoryLevel) error {
		// 锁内重读，避免与并发释放产生双重回冲
		fresh, err := store.GetReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		if !fresh.Release() {
			return nil
		}
		mv := domain.NewMovement(uuid.New().String(), level, domain.MovementTypeReturn, fresh.ReservedQuantity, fresh.Reference, "reservation released", "")
		level.ReleaseReserved(fresh.ReservedQuantity)
		if err := store.SaveReservation(ctx, fresh); err != nil {
			return err
		}
		mv.Complete(level)
		return store.CreateMovement(ctx, mv)
	})
}

// ReleaseByLock 释放一个结算锁名下所有未确认的预占。
// 已确认（ORDER_CONFIRMED）的预占不受影响。
func (e *Engine) ReleaseByLock(ctx context.Context, lockID string) error {
	ctx, span := e.tracer.Start(ctx, "inventory.ReleaseByLock")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", lockID))

	reservations, err := e.repo.ReservationsByLock(ctx, lockID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, res := range reservations {
		if res.IsReleased || res.Status == domain.ReservationStatusOrderConfirmed {
			continue
		}
		if err := e.Release(ctx, res.ID); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// Confirm 将单条预占升级为订单确认状态，使其脱离锁过期的管辖。
func (e *Engine) Confirm(ctx context.Context, reservationID string, orderRef domain.Reference) error {
	return e.repo.InTx(ctx, func(store domain.Store) error {
		res, err := store.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.IsReleased {
			return fmt.Errorf("cannot confirm released reservation %s", reservationID)
		}
		res.Confirm(orderRef)
		return store.SaveReservation(ctx, res)
	})
}

// ConfirmByLock 确认一个结算锁名下所有存活的预占。
// 这是预占躲过锁过期回收的唯一路径。
func (e *Engine) ConfirmByLock(ctx context.Context, lockID string, orderRef domain.Reference) error {
	ctx, span := e.tracer.Start(ctx, "inventory.ConfirmByLock")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", lockID))

	reservations, err := e.repo.ReservationsByLock(ctx, lockID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, res := range reservations {
		if res.IsReleased {
			continue
		}
		if err := e.Confirm(ctx, res.ID, orderRef); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// Adjust 是非结算路径的人工库存修正入口。
// 它与结算预占走同一条原子账本路径，产生同样的流水和低库存副作用。
func (e *Engine) Adjust(ctx context.Context, cmd AdjustCommand) error {
	ctx, span := e.tracer.Start(ctx, "inventory.Adjust")
	defer span.End()
	span.SetAttributes(
		attribute.String("variant.id", cmd.VariantID),
		attribute.String("warehouse.id", cmd.WarehouseID),
		attribute.Int("delta", cmd.Delta),
	)

	if cmd.Delta == 0 {
		return fmt.Errorf("adjustment delta must be non-zero")
	}

	err := e.withLevel(ctx, cmd.VariantID, cmd.WarehouseID, func(store domain.Store, level *domain.InventoryLevel) error {
		mv := domain.NewMovement(uuid.New().String(), level, domain.MovementTypeManualAdjustment, cmd.Delta, cmd.Actor, cmd.Reason, cmd.Actor.ID)
		if err := level.AdjustOnHand(cmd.Delta); err != nil {
			return err
		}
		mv.Complete(level)
		return store.CreateMovement(ctx, mv)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	adjustmentsTotal.Inc()
	return nil
}

// Level 查询一个水位的当前状态。
func (e *Engine) Level(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	return e.repo.GetLevel(ctx, variantID, warehouseID)
}

// Movements 按 movement_date 顺序返回一个水位的全部流水。
func (e *Engine) Movements(ctx context.Context, levelID string) ([]*domain.StockMovement, error) {
	return e.repo.MovementsByLevel(ctx, levelID)
}

// ReservationsByLock 返回一个结算锁名下的全部预占记录。
func (e *Engine) ReservationsByLock(ctx context.Context, lockID string) ([]*domain.StockReservation, error) {
	return e.repo.ReservationsByLock(ctx, lockID)
}

// OpenAlert 返回水位当前未解决的低库存告警。
func (e *Engine) OpenAlert(ctx context.Context, levelID string) (*domain.LowStockAlert, error) {
	return e.repo.OpenAlert(ctx, levelID)
}

// withLevel 是所有水位变更的公共骨架：
// 先拿 (variant, warehouse) 的互斥锁，再在一个存储事务内执行变更并回写，
// 最后在锁内完成低库存告警的产生/解除判定。通知在事务提交后投递。
func (e *Engine) withLevel(ctx context.Context, variantID, warehouseID string, fn func(store domain.Store, level *domain.InventoryLevel) error) error {
	unlock, err := e.locks.Lock(ctx, levelKey(variantID, warehouseID))
	if err != nil {
		return err
	}
	defer unlock()

	var raised, resolved *domain.LowStockAlert
	err = e.repo.InTx(ctx, func(store domain.Store) error {
		level, err := store.LevelForUpdate(ctx, variantID, warehouseID)
		if err != nil {
			return err
		}
		if err := fn(store, level); err != nil {
			return err
		}
		if err := store.SaveLevel(ctx, level); err != nil {
			return err
		}
		raised, resolved, err = evaluateLowStock(ctx, store, level)
		return err
	})
	if err != nil {
		return err
	}

	e.dispatchAlerts(ctx, raised, resolved)
	return nil
}

// evaluateLowStock 判断本次变更是否跨越了补货点。
// 同一水位同一时刻至多一条未解决告警。
func evaluateLowStock(ctx context.Context, store domain.Store, level *domain.InventoryLevel) (raised, resolved *domain.LowStockAlert, err error) {
	open, err := store.OpenAlert(ctx, level.ID)
	if err != nil {
		return nil, nil, err
	}

	available := level.AvailableQuantity()
	if available < level.ReorderPoint && open == nil {
		alert := domain.NewLowStockAlert(uuid.New().String(), level)
		if err := store.CreateAlert(ctx, alert); err != nil {
			return nil, nil, err
		}
		lowStockAlertsTotal.Inc()
		return alert, nil, nil
	}
	if available >= level.ReorderPoint && open != nil {
		open.Resolve("")
		if err := store.SaveAlert(ctx, open); err != nil {
			return nil, nil, err
		}
		return nil, open, nil
	}
	return nil, nil, nil
}

// dispatchAlerts 在事务提交后投递告警通知。
// 投递失败只记日志，结算路径永远不会因为通知系统失败而失败。
func (e *Engine) dispatchAlerts(ctx context.Context, raised, resolved *domain.LowStockAlert) {
	if e.notifier == nil {
		return
	}
	if raised != nil {
		if err := e.notifier.LowStockRaised(ctx, raised); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("level_id", raised.LevelID).Msg("failed to dispatch low stock alert")
		} else {
			raised.MarkNotified()
			if err := e.repo.SaveAlert(ctx, raised); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("alert_id", raised.ID).Msg("failed to stamp alert notification")
			}
		}
	}
	if resolved != nil {
		if err := e.notifier.LowStockResolved(ctx, resolved); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("level_id", resolved.LevelID).Msg("failed to dispatch alert resolution")
		}
	}
}
