package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/locker"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
	checkoutinfra "storefront/internal/service/checkout/infrastructure"
	invapp "storefront/internal/service/inventory/application"
	invdomain "storefront/internal/service/inventory/domain"
	invinfra "storefront/internal/service/inventory/infrastructure"
)

type fakeCartStore struct {
	carts map[string]*port.Cart
}

func (s *fakeCartStore) GetCart(ctx context.Context, cartID string) (*port.Cart, error) {
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, errors.New("cart not found: " + cartID)
	}
	return cart, nil
}

type fakePricing struct {
	unitPrice     int64
	shippingFee   int64
	exchangeRate  string
	discountCodes []string
	failLine      string // 该行报价直接失败
}

func (p *fakePricing) QuoteLine(ctx context.Context, cartID, lineID, variantID string, quantity int) (*port.LineQuote, error) {
	if p.failLine != "" && p.failLine == lineID {
		return nil, errors.New("pricing backend unavailable")
	}
	return &port.LineQuote{
		LineID:        lineID,
		VariantID:     variantID,
		Quantity:      quantity,
		CurrencyCode:  "USD",
		UnitPrice:     p.unitPrice,
		ExchangeRate:  p.exchangeRate,
		DiscountCodes: p.discountCodes,
	}, nil
}

func (p *fakePricing) QuoteCart(ctx context.Context, cartID string) (*port.CartQuote, error) {
	return &port.CartQuote{
		CurrencyCode:  "USD",
		ShippingFee:   p.shippingFee,
		ExchangeRate:  p.exchangeRate,
		DiscountCodes: p.discountCodes,
	}, nil
}

type testHarness struct {
	service  *LockService
	lockRepo *checkoutinfra.MemoryLockRepository
	invRepo  *invinfra.MemoryInventoryRepository
	engine   *invapp.Engine
	pricing  *fakePricing
	carts    *fakeCartStore
}

func newHarness(t *testing.T, ttl time.Duration) *testHarness {
	t.Helper()

	invRepo := invinfra.NewMemoryInventoryRepository()
	invRepo.SeedLevel(&invdomain.InventoryLevel{
		ID:          "lvl-1",
		VariantID:   "variant-v",
		WarehouseID: "wh-w",
		Quantity:    5,
	})
	engine := invapp.NewEngine(invRepo, locker.NewSharded(), nil, otel.Tracer("checkout-test"))

	lockRepo := checkoutinfra.NewMemoryLockRepository()
	pricing := &fakePricing{unitPrice: 1000, shippingFee: 500}
	carts := &fakeCartStore{carts: map[string]*port.Cart{
		"cart-1": {
			ID:           "cart-1",
			CurrencyCode: "USD",
			Lines: []port.CartLine{
				{LineID: "line-1", VariantID: "variant-v", WarehouseID: "wh-w", Quantity: 5},
			},
		},
		"cart-2": {
			ID:           "cart-2",
			CurrencyCode: "USD",
			Lines: []port.CartLine{
				{LineID: "line-1", VariantID: "variant-v", WarehouseID: "wh-w", Quantity: 1},
			},
		},
	}}

	snapshots := NewSnapshotService(lockRepo, pricing)
	stock := checkoutinfra.NewInventoryAdapter(engine)
	service := NewLockService(lockRepo, carts, snapshots, stock, nil, otel.Tracer("checkout-test"), ttl)

	return &testHarness{
		service:  service,
		lockRepo: lockRepo,
		invRepo:  invRepo,
		engine:   engine,
		pricing:  pricing,
		carts:    carts,
	}
}

// advanceToAuthorizing 走完 pending -> locking_prices -> authorizing 两步。
func advanceToAuthorizing(t *testing.T, h *testHarness, lockID string) *domain.CheckoutLock {
	t.Helper()
	ctx := context.Background()

	lock, err := h.service.Advance(ctx, lockID)
	if err != nil {
		t.Fatalf("advance to locking_prices failed: %v", err)
	}
	if lock.State != domain.StateLockingPrices {
		t.Fatalf("expected locking_prices, got %s", lock.State)
	}

	lock, err = h.service.Advance(ctx, lockID)
	if err != nil {
		t.Fatalf("advance to authorizing failed: %v", err)
	}
	return lock
}

func availableQty(t *testing.T, h *testHarness) int {
	t.Helper()
	level, err := h.invRepo.GetLevel(context.Background(), "variant-v", "wh-w")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	return level.AvailableQuantity()
}

func TestCheckoutReservesAllStock(t *testing.T) {
	// Scenario: 一辆车买空全部 5 件，第二辆车随即要 1 件被拒
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1", SessionID: "s1", UserID: "u1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	lock = advanceToAuthorizing(t, h, lock.ID)
	if lock.State != domain.StateAuthorizing {
		t.Fatalf("expected authorizing, got %s (reason %+v)", lock.State, lock.FailureReason)
	}
	if got := availableQty(t, h); got != 0 {
		t.Errorf("expected available 0 after reservation, got %d", got)
	}

	// 第二辆车：同一 variant/warehouse 要 1 件
	second, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-2", SessionID: "s2", UserID: "u2"})
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	second = advanceToAuthorizing(t, h, second.ID)

	if second.State != domain.StateFailed {
		t.Fatalf("expected second lock to fail, got %s", second.State)
	}
	if second.FailureReason == nil || second.FailureReason.Phase != domain.PhaseStock {
		t.Errorf("expected stock phase failure, got %+v", second.FailureReason)
	}
}

func TestExpiredLockIsReapedAndStockReturns(t *testing.T) {
	// Scenario: 预占后锁过期，Reaper 收割，库存回到 5，第二次尝试成功
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	lock = advanceToAuthorizing(t, h, lock.ID)
	if lock.State != domain.StateAuthorizing {
		t.Fatalf("expected authorizing, got %s", lock.State)
	}

	// 把过期时间拨到过去
	lock.ExpiresAt = time.Now().Add(-time.Minute)
	if err := h.lockRepo.UpdateLock(ctx, lock); err != nil {
		t.Fatalf("failed to backdate lock: %v", err)
	}

	reaper := NewReaper(h.service, h.lockRepo, nil, time.Hour, 10)
	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	reaped, err := h.service.GetLock(ctx, lock.ID)
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if reaped.State != domain.StateFailed {
		t.Errorf("expected reaped lock to be failed, got %s", reaped.State)
	}
	if reaped.FailureReason == nil || reaped.FailureReason.Phase != domain.PhaseExpiry {
		t.Errorf("expected expiry failure reason, got %+v", reaped.FailureReason)
	}
	if got := availableQty(t, h); got != 5 {
		t.Errorf("expected stock back to 5 after reap, got %d", got)
	}

	// 第二次尝试现在应当成功
	second, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-2"})
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	second = advanceToAuthorizing(t, h, second.ID)
	if second.State != domain.StateAuthorizing {
		t.Errorf("expected second attempt to reach authorizing, got %s", second.State)
	}
}

func TestAcquireConflictsOnActiveLock(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	if _, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"}); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if !domain.IsConflict(err) {
		t.Errorf("expected conflict for second acquire, got %v", err)
	}
}

func TestAcquireReplacesExpiredLock(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	first, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	first.ExpiresAt = time.Now().Add(-time.Minute)
	if err := h.lockRepo.UpdateLock(ctx, first); err != nil {
		t.Fatalf("failed to backdate lock: %v", err)
	}

	second, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("expected expired lock to be failed lazily, got %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected a fresh lock to be issued")
	}

	old, _ := h.service.GetLock(ctx, first.ID)
	if old.State != domain.StateFailed {
		t.Errorf("expected old lock failed, got %s", old.State)
	}
}

func TestPricingFailureFailsLockWithoutPartialSnapshots(t *testing.T) {
	// Arrange: 两行购物车，第二行报价失败
	h := newHarness(t, 10*time.Minute)
	h.carts.carts["cart-1"].Lines = append(h.carts.carts["cart-1"].Lines,
		port.CartLine{LineID: "line-2", VariantID: "variant-v", WarehouseID: "wh-w", Quantity: 1})
	h.pricing.failLine = "line-2"
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Act
	lock, err = h.service.Advance(ctx, lock.ID)
	if err != nil {
		t.Fatalf("advance returned infrastructure error: %v", err)
	}

	// Assert: 锁失败、定价阶段、没有半套快照
	if lock.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", lock.State)
	}
	if lock.FailureReason == nil || lock.FailureReason.Phase != domain.PhasePricing {
		t.Errorf("expected pricing failure, got %+v", lock.FailureReason)
	}
	snapshots, err := h.service.Snapshots(ctx, lock.ID)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected no snapshots after pricing failure, got %d", len(snapshots))
	}
}

func TestSnapshotTotalsAreFrozen(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	h.pricing.exchangeRate = "1.0832"
	h.pricing.discountCodes = []string{"SUMMER10"}
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	lock, err = h.service.Advance(ctx, lock.ID)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	// 5 件 x 1000 + 运费 500
	if lock.TotalAmount != 5500 {
		t.Errorf("expected frozen total 5500, got %d", lock.TotalAmount)
	}

	snapshots, err := h.service.Snapshots(ctx, lock.ID)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots (line + cart), got %d", len(snapshots))
	}
	var sum int64
	for _, s := range snapshots {
		if s.SumBreakdown() != s.GrandTotal {
			t.Errorf("snapshot %s breakdown sum %d != grand total %d", s.ID, s.SumBreakdown(), s.GrandTotal)
		}
		if s.ExchangeRate != "1.0832" {
			t.Errorf("snapshot %s expected frozen exchange rate 1.0832, got %q", s.ID, s.ExchangeRate)
		}
		if len(s.AppliedDiscountCodes) != 1 || s.AppliedDiscountCodes[0] != "SUMMER10" {
			t.Errorf("snapshot %s expected applied discount codes [SUMMER10], got %v", s.ID, s.AppliedDiscountCodes)
		}
		sum += s.GrandTotal
	}
	if sum != lock.TotalAmount {
		t.Errorf("snapshot totals %d != lock total %d", sum, lock.TotalAmount)
	}

	// 改价换汇后快照保持不变
	h.pricing.unitPrice = 9999
	h.pricing.exchangeRate = "2"
	again, err := h.service.Snapshots(ctx, lock.ID)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if again[0].UnitPrice != 1000 {
		t.Errorf("expected frozen unit price 1000, got %d", again[0].UnitPrice)
	}
	if again[0].ExchangeRate != "1.0832" {
		t.Errorf("expected frozen exchange rate 1.0832, got %q", again[0].ExchangeRate)
	}
}

func TestCompleteConfirmsReservations(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	advanceToAuthorizing(t, h, lock.ID)

	// Act
	completed, err := h.service.Complete(ctx, lock.ID, "order-1")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", completed.State)
	}

	// Assert: 占用仍在账上且已脱离锁的管辖
	if got := availableQty(t, h); got != 0 {
		t.Errorf("expected confirmed reservation to hold stock, available=%d", got)
	}
	if err := h.engine.ReleaseByLock(ctx, lock.ID); err != nil {
		t.Fatalf("release by lock failed: %v", err)
	}
	if got := availableQty(t, h); got != 0 {
		t.Errorf("confirmed reservation must survive lock release, available=%d", got)
	}

	// 终态锁拒绝一切后续操作
	if _, err := h.service.Complete(ctx, lock.ID, "order-2"); !domain.IsAlreadyTerminal(err) {
		t.Errorf("expected AlreadyTerminalError, got %v", err)
	}
	if _, err := h.service.Fail(ctx, lock.ID, domain.FailureReason{Phase: domain.PhasePayment}); !domain.IsAlreadyTerminal(err) {
		t.Errorf("expected AlreadyTerminalError from fail, got %v", err)
	}
}

func TestCompleteOnlyLegalFromAuthorizing(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if _, err := h.service.Complete(ctx, lock.ID, "order-1"); !domain.IsConflict(err) {
		t.Errorf("expected conflict completing a pending lock, got %v", err)
	}
}

func TestPaymentFailureReleasesStock(t *testing.T) {
	h := newHarness(t, 10*time.Minute)
	ctx := context.Background()

	lock, err := h.service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	advanceToAuthorizing(t, h, lock.ID)
	if got := availableQty(t, h); got != 0 {
		t.Fatalf("expected stock reserved, available=%d", got)
	}

	// Act: 支付失败
	failed, err := h.service.Fail(ctx, lock.ID, domain.FailureReason{
		Phase: domain.PhasePayment, Code: "card_declined",
	})
	if err != nil {
		t.Fatalf("fail returned error: %v", err)
	}
	if failed.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", failed.State)
	}
	if got := availableQty(t, h); got != 5 {
		t.Errorf("expected stock released after payment failure, available=%d", got)
	}

	// 快照留档不删
	snapshots, err := h.service.Snapshots(ctx, lock.ID)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snapshots) == 0 {
		t.Error("expected snapshots retained for audit after failure")
	}
}

// countingStock 记录确认次数，其余调用透传给真实适配器。
type countingStock struct {
	port.StockReserver
	confirms int
}

func (s *countingStock) ConfirmForLock(ctx context.Context, lockID, orderID string) error {
	s.confirms++
	return s.StockReserver.ConfirmForLock(ctx, lockID, orderID)
}

// interceptingLockRepo 在第一次 completed 写入前触发回调，
// 用来在完成方通过过期检查和落终态之间插入并发事件。
type interceptingLockRepo struct {
	domain.LockRepository
	beforeCompletedWrite func()
	once                 sync.Once
}

func (r *interceptingLockRepo) UpdateLock(ctx context.Context, lock *domain.CheckoutLock) error {
	if lock.State == domain.StateCompleted && r.beforeCompletedWrite != nil {
		r.once.Do(r.beforeCompletedWrite)
	}
	return r.LockRepository.UpdateLock(ctx, lock)
}

func TestCompleteLosingRaceToReaperNeverConfirmsStock(t *testing.T) {
	// Scenario: 完成请求通过了过期检查，但在写终态前锁刚好到期且被
	// 清扫器抢先置为 failed 并释放预占。守护式写入落空后，完成方必须
	// 返回 AlreadyTerminalError 且绝不再确认库存，否则预占会永久悬挂。
	invRepo := invinfra.NewMemoryInventoryRepository()
	invRepo.SeedLevel(&invdomain.InventoryLevel{
		ID:          "lvl-1",
		VariantID:   "variant-v",
		WarehouseID: "wh-w",
		Quantity:    5,
	})
	engine := invapp.NewEngine(invRepo, locker.NewSharded(), nil, otel.Tracer("checkout-test"))

	lockRepo := checkoutinfra.NewMemoryLockRepository()
	repo := &interceptingLockRepo{LockRepository: lockRepo}
	stock := &countingStock{StockReserver: checkoutinfra.NewInventoryAdapter(engine)}
	pricing := &fakePricing{unitPrice: 1000}
	carts := &fakeCartStore{carts: map[string]*port.Cart{
		"cart-1": {
			ID:           "cart-1",
			CurrencyCode: "USD",
			Lines: []port.CartLine{
				{LineID: "line-1", VariantID: "variant-v", WarehouseID: "wh-w", Quantity: 5},
			},
		},
	}}
	service := NewLockService(repo, carts, NewSnapshotService(lockRepo, pricing), stock, nil, otel.Tracer("checkout-test"), 10*time.Minute)

	ctx := context.Background()
	lock, err := service.Acquire(ctx, AcquireCommand{CartID: "cart-1"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := service.Advance(ctx, lock.ID); err != nil {
		t.Fatalf("advance to locking_prices failed: %v", err)
	}
	if _, err := service.Advance(ctx, lock.ID); err != nil {
		t.Fatalf("advance to authorizing failed: %v", err)
	}

	// 清扫器在完成方的终态写入之前赢得这把锁
	repo.beforeCompletedWrite = func() {
		stored, err := lockRepo.GetLock(ctx, lock.ID)
		if err != nil {
			t.Fatalf("GetLock failed: %v", err)
		}
		stored.ExpiresAt = time.Now().Add(-time.Minute)
		if err := lockRepo.UpdateLock(ctx, stored); err != nil {
			t.Fatalf("failed to backdate lock: %v", err)
		}
		if err := NewReaper(service, lockRepo, nil, time.Hour, 10).Sweep(ctx); err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
	}

	_, err = service.Complete(ctx, lock.ID, "order-1")
	if !domain.IsAlreadyTerminal(err) {
		t.Fatalf("expected AlreadyTerminalError after losing the terminal write, got %v", err)
	}
	if stock.confirms != 0 {
		t.Errorf("stock must not be confirmed when completion lost the race, got %d confirms", stock.confirms)
	}

	final, err := service.GetLock(ctx, lock.ID)
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if final.State != domain.StateFailed {
		t.Errorf("expected lock failed by the sweep, got %s", final.State)
	}
	level, err := invRepo.GetLevel(ctx, "variant-v", "wh-w")
	if err != nil {
		t.Fatalf("GetLevel failed: %v", err)
	}
	if got := level.AvailableQuantity(); got != 5 {
		t.Errorf("expected all stock released after the sweep, available=%d", got)
	}
}
