package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/locker"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure"
)

type recordingNotifier struct {
	mu       sync.Mutex
	raised   []string
	resolved []string
}

func (n *recordingNotifier) LowStockRaised(ctx context.Context, alert *domain.LowStockAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = append(n.raised, alert.ID)
	return nil
}

func (n *recordingNotifier) LowStockResolved(ctx context.Context, alert *domain.LowStockAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, alert.ID)
	return nil
}

func newTestEngine(t *testing.T, levels ...*domain.InventoryLevel) (*Engine, *infrastructure.MemoryInventoryRepository, *recordingNotifier) {
	t.Helper()
	repo := infrastructure.NewMemoryInventoryRepository()
	for _, l := range levels {
		repo.SeedLevel(l)
	}
	notifier := &recordingNotifier{}
	engine := NewEngine(repo, locker.NewSharded(), notifier, otel.Tracer("engine-test"))
	return engine, repo, notifier
}

func seedLevel(quantity, reorderPoint int) *domain.InventoryLevel {
	return &domain.InventoryLevel{
		ID:           "lvl-1",
		VariantID:    "variant-1",
		WarehouseID:  "wh-1",
		Quantity:     quantity,
		ReorderPoint: reorderPoint,
	}
}

func reserveOne(engine *Engine, owner string, qty int) error {
	_, err := engine.Reserve(context.Background(), ReserveCommand{
		Owner:         domain.LockRef(owner),
		LockToken:     "token-" + owner,
		LockExpiresAt: time.Now().Add(time.Minute),
		Lines: []ReserveLine{
			{VariantID: "variant-1", WarehouseID: "wh-1", Quantity: qty},
		},
	})
	return err
}

func TestReserveNoOversellUnderConcurrency(t *testing.T) {
	// Arrange: 10 件在库，20 个并发请求各要 1 件
	engine, repo, _ := newTestEngine(t, seedLevel(10, 0))

	const attempts = 20
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reserveOne(engine, lockName(i), 1)
		}(i)
	}
	wg.Wait()

	// Assert: 恰好 10 个成功，其余都是明确的缺货错误
	granted := 0
	for _, err := range errs {
		if err == nil {
			granted++
			continue
		}
		if _, ok := domain.IsInsufficientStock(err); !ok {
			t.Errorf("expected insufficient stock error, got %v", err)
		}
	}
	if granted != 10 {
		t.Errorf("expected exactly 10 grants, got %d", granted)
	}

	level, err := repo.GetLevel(context.Background(), "variant-1", "wh-1")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	if level.ReservedQuantity != 10 {
		t.Errorf("expected reserved 10, got %d", level.ReservedQuantity)
	}
	if level.AvailableQuantity() != 0 {
		t.Errorf("expected available 0, got %d", level.AvailableQuantity())
	}
}

func lockName(i int) string {
	return "lock-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestMovementChainConsistency(t *testing.T) {
	// Arrange
	engine, repo, _ := newTestEngine(t, seedLevel(20, 0))
	ctx := context.Background()

	// Act: 预占、释放、人工调整交错发生
	reservations, err := engine.Reserve(ctx, ReserveCommand{
		Owner:         domain.LockRef("lock-1"),
		LockExpiresAt: time.Now().Add(time.Minute),
		Lines:         []ReserveLine{{VariantID: "variant-1", WarehouseID: "wh-1", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := engine.Adjust(ctx, AdjustCommand{
		VariantID:   "variant-1",
		WarehouseID: "wh-1",
		Delta:       3,
		Reason:      "cycle count",
		Actor:       domain.ManualRef("ops-1"),
	}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if err := engine.Release(ctx, reservations[0].ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Assert: 按时间重放流水，前后快照首尾相接
	movements, err := repo.MovementsByLevel(ctx, "lvl-1")
	if err != nil {
		t.Fatalf("MovementsByLevel failed: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(movements))
	}
	for i := 0; i < len(movements)-1; i++ {
		cur, next := movements[i], movements[i+1]
		if cur.QuantityAfter != next.QuantityBefore {
			t.Errorf("movement %d: quantity chain broken, after=%d next before=%d", i, cur.QuantityAfter, next.QuantityBefore)
		}
		if cur.ReservedAfter != next.ReservedBefore {
			t.Errorf("movement %d: reserved chain broken, after=%d next before=%d", i, cur.ReservedAfter, next.ReservedBefore)
		}
		if cur.AvailableAfter != next.AvailableBefore {
			t.Errorf("movement %d: available chain broken, after=%d next before=%d", i, cur.AvailableAfter, next.AvailableBefore)
		}
	}

	level, err := repo.GetLevel(ctx, "variant-1", "wh-1")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	last := movements[len(movements)-1]
	if last.QuantityAfter != level.Quantity || last.ReservedAfter != level.ReservedQuantity {
		t.Errorf("final movement snapshot (%d/%d) does not match level (%d/%d)",
			last.QuantityAfter, last.ReservedAfter, level.Quantity, level.ReservedQuantity)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	// Arrange
	engine, repo, _ := newTestEngine(t, seedLevel(10, 0))
	ctx := context.Background()

	reservations, err := engine.Reserve(ctx, ReserveCommand{
		Owner:         domain.LockRef("lock-1"),
		LockExpiresAt: time.Now().Add(time.Minute),
		Lines:         []ReserveLine{{VariantID: "variant-1", WarehouseID: "wh-1", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Act: 释放两次
	if err := engine.Release(ctx, reservations[0].ID); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := engine.Release(ctx, reservations[0].ID); err != nil {
		t.Fatalf("second release failed: %v", err)
	}

	// Assert: 只回冲一次
	level, err := repo.GetLevel(ctx, "variant-1", "wh-1")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	if level.ReservedQuantity != 0 {
		t.Errorf("expected reserved 0 after release, got %d", level.ReservedQuantity)
	}

	movements, _ := repo.MovementsByLevel(ctx, "lvl-1")
	returns := 0
	for _, mv := range movements {
		if mv.Type == domain.MovementTypeReturn {
			returns++
		}
	}
	if returns != 1 {
		t.Errorf("expected exactly 1 return movement, got %d", returns)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	// Arrange: 第二个仓库库存不足
	repo := infrastructure.NewMemoryInventoryRepository()
	repo.SeedLevel(&domain.InventoryLevel{ID: "lvl-1", VariantID: "variant-1", WarehouseID: "wh-1", Quantity: 10})
	repo.SeedLevel(&domain.InventoryLevel{ID: "lvl-2", VariantID: "variant-2", WarehouseID: "wh-1", Quantity: 1})
	engine := NewEngine(repo, locker.NewSharded(), nil, otel.Tracer("engine-test"))
	ctx := context.Background()

	// Act
	_, err := engine.Reserve(ctx, ReserveCommand{
		Owner:         domain.LockRef("lock-1"),
		LockExpiresAt: time.Now().Add(time.Minute),
		Lines: []ReserveLine{
			{VariantID: "variant-1", WarehouseID: "wh-1", Quantity: 5},
			{VariantID: "variant-2", WarehouseID: "wh-1", Quantity: 3},
		},
	})

	// Assert: 失败且第一行的预占被回滚
	if _, ok := domain.IsInsufficientStock(err); !ok {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	level, err := repo.GetLevel(ctx, "variant-1", "wh-1")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	if level.ReservedQuantity != 0 {
		t.Errorf("expected first line rolled back, reserved=%d", level.ReservedQuantity)
	}
}

func TestLowStockAlertLifecycle(t *testing.T) {
	// Arrange: quantity=10, reorder_point=5
	engine, repo, notifier := newTestEngine(t, seedLevel(10, 5))
	ctx := context.Background()

	// Act: 预占 6 件，可售降到 4，跨过补货点
	reservations, err := engine.Reserve(ctx, ReserveCommand{
		Owner:         domain.LockRef("lock-1"),
		LockExpiresAt: time.Now().Add(time.Minute),
		Lines:         []ReserveLine{{VariantID: "variant-1", WarehouseID: "wh-1", Quantity: 6}},
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Assert: 恰好一条未解决告警
	alert, err := repo.OpenAlert(ctx, "lvl-1")
	if err != nil {
		t.Fatalf("OpenAlert failed: %v", err)
	}
	if alert == nil {
		t.Fatal("expected an open low stock alert")
	}
	if len(notifier.raised) != 1 {
		t.Errorf("expected 1 raised notification, got %d", len(notifier.raised))
	}

	// 再预占 1 件不会产生第二条告警
	if err := reserveOne(engine, "lock-2", 1); err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}
	if len(notifier.raised) != 1 {
		t.Errorf("expected still 1 raised notification, got %d", len(notifier.raised))
	}

	// Act: 释放后可售回到补货点之上，告警自动解除
	if err := engine.Release(ctx, reservations[0].ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	alert, err = repo.OpenAlert(ctx, "lvl-1")
	if err != nil {
		t.Fatalf("OpenAlert failed: %v", err)
	}
	if alert != nil {
		t.Error("expected alert to be auto-resolved")
	}
	if len(notifier.resolved) != 1 {
		t.Errorf("expected 1 resolved notification, got %d", len(notifier.resolved))
	}
}

func TestConfirmedReservationSurvivesLockRelease(t *testing.T) {
	// Arrange
	engine, repo, _ := newTestEngine(t, seedLevel(10, 0))
	ctx := context.Background()

	if err := reserveOne(engine, "lock-1", 4); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Act: 确认后再按锁释放
	if err := engine.ConfirmByLock(ctx, "lock-1", domain.OrderRef("order-1")); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := engine.ReleaseByLock(ctx, "lock-1"); err != nil {
		t.Fatalf("release by lock failed: %v", err)
	}

	// Assert: 已确认的预占不被释放
	level, err := repo.GetLevel(ctx, "variant-1", "wh-1")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	if level.ReservedQuantity != 4 {
		t.Errorf("expected confirmed reservation to survive, reserved=%d", level.ReservedQuantity)
	}
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	engine, _, _ := newTestEngine(t, seedLevel(10, 0))

	err := engine.Adjust(context.Background(), AdjustCommand{
		VariantID:   "variant-1",
		WarehouseID: "wh-1",
		Delta:       0,
		Actor:       domain.ManualRef("ops-1"),
	})
	if err == nil {
		t.Error("expected zero delta adjustment to be rejected")
	}
}
