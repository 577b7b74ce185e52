package application

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

var reapedLocksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "storefront_checkout_reaped_locks_total",
	Help: "Number of expired checkout locks failed by the reaper.",
})

// ReaperLease 多实例部署时用来保证同一时刻只有一个 reaper 在扫描。
// 单实例场景传 nil 即可。
type ReaperLease interface {
	// Acquire 拿到租约返回 release 回调；没拿到返回 (nil, false)。
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Reaper 周期性扫描已过期但仍处于活动状态的结算锁，对它们执行 fail。
// 过期是惰性生效的：请求路径先观察到就由请求路径收尾，Reaper 只是兜底，
// 撞上已终态的锁属于正常情况。
type Reaper struct {
	locks     *LockService
	repo      domain.LockRepository
	lease     ReaperLease
	interval  time.Duration
	batchSize int
}

func NewReaper(locks *LockService, repo domain.LockRepository, lease ReaperLease, interval time.Duration, batchSize int) *Reaper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reaper{
		locks:     locks,
		repo:      repo,
		lease:     lease,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start 阻塞运行扫描循环，直到 ctx 取消。
func (r *Reaper) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().Dur("interval", r.interval).Int("batch_size", r.batchSize).
		Msg("expiry reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry reaper stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("reaper sweep failed")
			}
		}
	}
}

// Sweep 执行一轮扫描。单独暴露方便测试和手工触发。
func (r *Reaper) Sweep(ctx context.Context) error {
	if r.lease != nil {
		release, ok, err := r.lease.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer release()
	}

	expired, err := r.repo.ListExpired(ctx, time.Now(), r.batchSize)
	if err != nil {
		return err
	}

	for _, lock := range expired {
		if _, err := r.locks.Fail(ctx, lock.ID, domain.FailureReason{
			Phase:   domain.PhaseExpiry,
			Code:    "lock_expired",
			Message: "lock expired before completion",
		}); err != nil {
			// 请求路径抢先把锁收尾了，不算错误。
			if domain.IsAlreadyTerminal(err) {
				continue
			}
			logger.Ctx(ctx).Error().Err(err).Str("lock_id", lock.ID).Msg("failed to reap expired lock")
			continue
		}
		reapedLocksTotal.Inc()
	}
	return nil
}
