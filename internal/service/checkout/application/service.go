package application

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	invdomain "storefront/internal/service/inventory/domain"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

var (
	locksAcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_locks_acquired_total",
		Help: "Number of checkout locks successfully acquired.",
	})
	lockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_lock_conflicts_total",
		Help: "Number of acquire attempts rejected because the cart already holds an active lock.",
	})
	locksCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_locks_completed_total",
		Help: "Number of checkout locks completed.",
	})
	locksFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_locks_failed_total",
		Help: "Number of checkout locks transitioned to failed, by phase.",
	}, []string{"phase"})
)

// LockService 是结算锁管理器，驱动 pending -> locking_prices -> authorizing
// -> completed/failed 的状态机，并在推进过程中编排价格冻结与库存预占。
type LockService struct {
	repo      domain.LockRepository
	carts     port.CartStore
	snapshots *SnapshotService
	stock     port.StockReserver
	notifier  port.NotificationProducer // 可为 nil
	tracer    trace.Tracer
	lockTTL   time.Duration
}

func NewLockService(
	repo domain.LockRepository,
	carts port.CartStore,
	snapshots *SnapshotService,
	stock port.StockReserver,
	notifier port.NotificationProducer,
	tracer trace.Tracer,
	lockTTL time.Duration,
) *LockService {
	return &LockService{
		repo:      repo,
		carts:     carts,
		snapshots: snapshots,
		stock:     stock,
		notifier:  notifier,
		tracer:    tracer,
		lockTTL:   lockTTL,
	}
}

// AcquireCommand 发起一次结算的请求。
type AcquireCommand struct {
	CartID    string
	SessionID string
	UserID    string
}

// Acquire 为购物车创建一把结算锁。
// 同一购物车已存在活动锁时返回 *ConflictError；活动锁已过期时
// 先对旧锁做一次惰性 fail（释放其占用），再创建新锁。
func (s *LockService) Acquire(ctx context.Context, cmd AcquireCommand) (*domain.CheckoutLock, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Acquire")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cmd.CartID))

	existing, err := s.repo.FindActiveByCart(ctx, cmd.CartID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsExpired(time.Now()) {
			lockConflictsTotal.Inc()
			span.SetStatus(codes.Error, "cart already locked")
			return nil, domain.NewConflictError(existing.ID, string(existing.State), "acquire")
		}
		logger.Ctx(ctx).Info().Str("lock_id", existing.ID).Str("cart_id", cmd.CartID).
			Msg("expired lock observed during acquire, failing it lazily")
		if err := s.failLock(ctx, existing, domain.FailureReason{
			Phase:   domain.PhaseExpiry,
			Code:    "lock_expired",
			Message: "lock expired before completion",
		}); err != nil && !domain.IsAlreadyTerminal(err) {
			return nil, err
		}
	}

	cart, err := s.carts.GetCart(ctx, cmd.CartID)
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, fmt.Errorf("cart %s has no lines to check out", cmd.CartID)
	}

	lock := domain.NewCheckoutLock(cmd.CartID, cmd.SessionID, cmd.UserID, cart.CurrencyCode, s.lockTTL)
	if err := s.repo.CreateLock(ctx, lock); err != nil {
		if domain.IsConflict(err) {
			lockConflictsTotal.Inc()
		}
		return nil, err
	}

	locksAcquiredTotal.Inc()
	logger.Ctx(ctx).Info().Str("lock_id", lock.ID).Str("cart_id", cmd.CartID).
		Time("expires_at", lock.ExpiresAt).Msg("checkout lock acquired")
	return lock, nil
}

// Advance 把锁推进到下一个状态：
//
//	pending         -> locking_prices  冻结整车价格快照
//	locking_prices  -> authorizing     占用库存
//
// 定价失败、库存不足这类业务失败不作为 error 返回：锁被转入 failed，
// 结构化原因写进 FailureReason，调用方通过返回的锁读取结果。
// 存储、网络等基础设施错误原样向上传递，锁停留在原状态等 Reaper 收尾。
func (s *LockService) Advance(ctx context.Context, lockID string) (*domain.CheckoutLock, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", lockID))

	lock, err := s.repo.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if lock.State.IsTerminal() {
		return nil, domain.NewAlreadyTerminalError(lock.ID, lock.State)
	}
	if lock.IsExpired(time.Now()) {
		if err := s.failLock(ctx, lock, domain.FailureReason{
			Phase:   domain.PhaseExpiry,
			Code:    "lock_expired",
			Message: "lock expired before completion",
		}); err != nil && !domain.IsAlreadyTerminal(err) {
			return nil, err
		}
		return lock, &domain.ExpiredLockError{LockID: lock.ID}
	}

	switch lock.State {
	case domain.StatePending:
		return s.advanceToPricing(ctx, lock)
	case domain.StateAuthorizing:
		return nil, domain.NewConflictError(lock.ID, string(lock.State), "advance")
	default: // locking_prices
		return s.advanceToAuthorizing(ctx, lock)
	}
}

// advanceToPricing 冻结价格，成功后锁进入 locking_prices。
func (s *LockService) advanceToPricing(ctx context.Context, lock *domain.CheckoutLock) (*domain.CheckoutLock, error) {
	cart, err := s.carts.GetCart(ctx, lock.CartID)
	if err != nil {
		return nil, err
	}

	if err := lock.BeginPricing(); err != nil {
		return nil, err
	}

	total, err := s.snapshots.Freeze(ctx, lock, cart)
	if err != nil {
		if domain.IsPricing(err) {
			return s.convertToFailed(ctx, lock, domain.FailureReason{
				Phase:   domain.PhasePricing,
				Code:    "quote_failed",
				Message: err.Error(),
			})
		}
		return nil, err
	}

	lock.TotalAmount = total
	if err := s.repo.UpdateLock(ctx, lock); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("lock_id", lock.ID).Int64("total_amount", total).
		Msg("lock advanced to locking_prices")
	return lock, nil
}

// advanceToAuthorizing 占用库存，成功后锁进入 authorizing。
func (s *LockService) advanceToAuthorizing(ctx context.Context, lock *domain.CheckoutLock) (*domain.CheckoutLock, error) {
	if err := lock.BeginReserving(); err != nil {
		return nil, err
	}
	cart, err := s.carts.GetCart(ctx, lock.CartID)
	if err != nil {
		return nil, err
	}

	lines := make([]port.ReservationLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, port.ReservationLine{
			LineID:      l.LineID,
			VariantID:   l.VariantID,
			WarehouseID: l.WarehouseID,
			Quantity:    l.Quantity,
		})
	}

	if _, err := s.stock.ReserveForLock(ctx, port.ReservationRequest{
		LockID:    lock.ID,
		LockToken: lock.LockToken,
		SessionID: lock.SessionID,
		UserID:    lock.UserID,
		ExpiresAt: lock.ExpiresAt,
		Lines:     lines,
	}); err != nil {
		if _, ok := invdomain.IsInsufficientStock(err); ok {
			return s.convertToFailed(ctx, lock, domain.FailureReason{
				Phase:   domain.PhaseStock,
				Code:    "insufficient_stock",
				Message: err.Error(),
			})
		}
		return nil, err
	}

	if err := lock.MarkAuthorizing(lock.TotalAmount); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLock(ctx, lock); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("lock_id", lock.ID).Msg("lock advanced to authorizing")
	return lock, nil
}

// Complete 只在 authorizing 状态下合法：确认全部库存占用并落终态。
// 确认后的占用不再受锁过期影响。
func (s *LockService) Complete(ctx context.Context, lockID, orderID string) (*domain.CheckoutLock, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", lockID))

	lock, err := s.repo.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if lock.State.IsTerminal() {
		return nil, domain.NewAlreadyTerminalError(lock.ID, lock.State)
	}
	if lock.IsExpired(time.Now()) {
		if err := s.failLock(ctx, lock, domain.FailureReason{
			Phase:   domain.PhaseExpiry,
			Code:    "lock_expired",
			Message: "lock expired before completion",
		}); err != nil && !domain.IsAlreadyTerminal(err) {
			return nil, err
		}
		return lock, &domain.ExpiredLockError{LockID: lock.ID}
	}
	if lock.State != domain.StateAuthorizing {
		return nil, domain.NewConflictError(lock.ID, string(lock.State), string(domain.StateCompleted))
	}

	// 先赢下终态写入再确认库存：守护式 UpdateLock 保证到期清扫器和本次
	// 完成只有一方成行，避免锁已失败但预占被确认成订单的悬挂占用。
	if err := lock.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLock(ctx, lock); err != nil {
		return nil, err
	}
	if err := s.stock.ConfirmForLock(ctx, lock.ID, orderID); err != nil {
		// 锁已落定为 completed，预占仍在且不会被清扫器释放，留给人工核对。
		logger.Ctx(ctx).Error().Err(err).
			Str("lock_id", lock.ID).
			Str("order_id", orderID).
			Msg("CRITICAL: lock completed but stock confirmation failed, reservations left pending")
		return lock, err
	}

	locksCompletedTotal.Inc()
	logger.Ctx(ctx).Info().Str("lock_id", lock.ID).Str("order_id", orderID).Msg("checkout lock completed")
	s.notify(ctx, lock)
	return lock, nil
}

// Fail 把锁显式转入 failed 并释放其全部库存占用。
// 对已是终态的锁返回 *AlreadyTerminalError。
func (s *LockService) Fail(ctx context.Context, lockID string, reason domain.FailureReason) (*domain.CheckoutLock, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Fail")
	defer span.End()
	span.SetAttributes(attribute.String("lock.id", lockID), attribute.String("failure.phase", string(reason.Phase)))

	lock, err := s.repo.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if err := s.failLock(ctx, lock, reason); err != nil {
		return nil, err
	}
	return lock, nil
}

// failLock 落 failed 终态并释放占用。释放放在状态更新之后：
// 即便这把锁同时被别处 fail，释放按占用 id 幂等执行，不会双重补偿。
func (s *LockService) failLock(ctx context.Context, lock *domain.CheckoutLock, reason domain.FailureReason) error {
	if err := lock.MarkFailed(reason); err != nil {
		return err
	}
	if err := s.repo.UpdateLock(ctx, lock); err != nil {
		return err
	}
	locksFailedTotal.WithLabelValues(string(reason.Phase)).Inc()

	if err := s.stock.ReleaseForLock(ctx, lock.ID); err != nil {
		// 占用带过期时间，Reaper 或人工释放可以兜底，这里只告警。
		logger.Ctx(ctx).Error().Err(err).Str("lock_id", lock.ID).
			Msg("CRITICAL: failed to release reservations for failed lock")
	}

	logger.Ctx(ctx).Info().Str("lock_id", lock.ID).
		Str("phase", string(reason.Phase)).Str("code", reason.Code).
		Msg("checkout lock failed")
	s.notify(ctx, lock)
	return nil
}

// convertToFailed 把 advance 阶段内的业务失败转换为 failed 终态，
// 并把锁而不是错误交还给调用方。
func (s *LockService) convertToFailed(ctx context.Context, lock *domain.CheckoutLock, reason domain.FailureReason) (*domain.CheckoutLock, error) {
	if err := s.failLock(ctx, lock, reason); err != nil {
		return nil, err
	}
	return lock, nil
}

func (s *LockService) notify(ctx context.Context, lock *domain.CheckoutLock) {
	if s.notifier == nil {
		return
	}
	var err error
	switch lock.State {
	case domain.StateCompleted:
		err = s.notifier.LockCompleted(ctx, lock)
	case domain.StateFailed:
		err = s.notifier.LockFailed(ctx, lock)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("lock_id", lock.ID).Msg("failed to publish lock event")
	}
}

// GetLock 查询单把锁。
func (s *LockService) GetLock(ctx context.Context, lockID string) (*domain.CheckoutLock, error) {
	return s.repo.GetLock(ctx, lockID)
}

// GetLockByToken 按调用方持有的 token 查锁。
func (s *LockService) GetLockByToken(ctx context.Context, token string) (*domain.CheckoutLock, error) {
	return s.repo.GetLockByToken(ctx, token)
}

// Snapshots 返回锁下冻结的全部价格快照。
func (s *LockService) Snapshots(ctx context.Context, lockID string) ([]*domain.PriceSnapshot, error) {
	return s.repo.SnapshotsByLock(ctx, lockID)
}

// Reservations 返回锁下的库存占用回执。
func (s *LockService) Reservations(ctx context.Context, lockID string) ([]port.ReservedLine, error) {
	return s.stock.ReservationsForLock(ctx, lockID)
}
