package application

import (
	"context"
	"testing"
	"time"

	"storefront/internal/service/checkout/domain"
)

type deniedLease struct{ attempts int }

func (l *deniedLease) Acquire(ctx context.Context) (func(), bool, error) {
	l.attempts++
	return nil, false, nil
}

func TestSweepSkipsWhenLeaseDenied(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	lock.ExpiresAt = time.Now().Add(-time.Minute)
	if err := h.lockRepo.UpdateLock(ctx, lock); err != nil {
		t.Fatalf("failed to backdate lock: %v", err)
	}

	lease := &deniedLease{}
	reaper := NewReaper(h.service, h.lockRepo, lease, time.Hour, 10)
	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if lease.attempts != 1 {
		t.Errorf("expected one lease attempt, got %d", lease.attempts)
	}
	current, _ := h.service.GetLock(ctx, lock.ID)
	if current.State == domain.StateFailed {
		t.Error("lock must not be reaped when the lease is held elsewhere")
	}
}

func TestSweepTreatsConcurrentlyFinishedLockAsBenign(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	lock.ExpiresAt = time.Now().Add(-time.Minute)
	if err := h.lockRepo.UpdateLock(ctx, lock); err != nil {
		t.Fatalf("failed to backdate lock: %v", err)
	}

	// 扫描拿到批次后，请求路径抢先把锁收尾
	if _, err := h.service.Fail(ctx, lock.ID, domain.FailureReason{Phase: domain.PhaseExpiry, Code: "lock_expired"}); err != nil {
		t.Fatalf("fail returned error: %v", err)
	}

	reaper := NewReaper(h.service, h.lockRepo, nil, time.Hour, 10)
	if err := reaper.Sweep(ctx); err != nil {
		t.Errorf("sweep must tolerate already-terminal locks, got %v", err)
	}
}

func TestSweepHonorsBatchLimit(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	for _, cartID := range []string{"cart-1", "cart-2"} {
		lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: cartID})
		if err != nil {
			t.Fatalf("acquire %s failed: %v", cartID, err)
		}
		lock.ExpiresAt = time.Now().Add(-time.Minute)
		if err := h.lockRepo.UpdateLock(ctx, lock); err != nil {
			t.Fatalf("failed to backdate lock: %v", err)
		}
	}

	reaper := NewReaper(h.service, h.lockRepo, nil, time.Hour, 1)
	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	expired, err := h.lockRepo.ListExpired(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("expected one lock left after limited sweep, got %d", len(expired))
	}
}
