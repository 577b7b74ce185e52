package domain

import (
	"errors"
	"testing"
)

func newTestLevel(quantity, reserved int) *InventoryLevel {
	return &InventoryLevel{
		ID:               "lvl-1",
		VariantID:        "variant-1",
		WarehouseID:      "wh-1",
		Quantity:         quantity,
		ReservedQuantity: reserved,
	}
}

func TestAvailableQuantityNeverNegative(t *testing.T) {
	level := newTestLevel(3, 5)
	if got := level.AvailableQuantity(); got != 0 {
		t.Errorf("expected available 0, got %d", got)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	level := newTestLevel(5, 3)

	err := level.Reserve(4)
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected *InsufficientStockError, got %T", err)
	}
	if insufficient.Shortfall != 2 {
		t.Errorf("expected shortfall 2, got %d", insufficient.Shortfall)
	}
	if level.ReservedQuantity != 3 {
		t.Errorf("failed reserve must not mutate level, reserved=%d", level.ReservedQuantity)
	}
}

func TestReserveUsesBackorderHeadroom(t *testing.T) {
	level := newTestLevel(5, 5)
	level.BackorderLimit = 2

	if err := level.Reserve(2); err != nil {
		t.Fatalf("expected backorder headroom to cover reserve, got %v", err)
	}
	if level.ReservedQuantity != 7 {
		t.Errorf("expected reserved 7, got %d", level.ReservedQuantity)
	}
}

func TestReleaseReservedClamps(t *testing.T) {
	level := newTestLevel(5, 2)
	level.ReleaseReserved(10)
	if level.ReservedQuantity != 0 {
		t.Errorf("expected reserved clamped to 0, got %d", level.ReservedQuantity)
	}
}

func TestAdjustOnHandRejectsUncoveredReservations(t *testing.T) {
	level := newTestLevel(5, 4)
	if err := level.AdjustOnHand(-2); err == nil {
		t.Error("expected adjustment leaving reservations uncovered to fail")
	}
	if err := level.AdjustOnHand(-1); err != nil {
		t.Errorf("expected adjustment down to reserved floor to succeed, got %v", err)
	}
}

func TestStatusThresholds(t *testing.T) {
	level := newTestLevel(10, 0)
	level.ReorderPoint = 5

	if got := level.Status(); got != StockStatusInStock {
		t.Errorf("expected IN_STOCK, got %s", got)
	}

	level.ReservedQuantity = 6 // available 4 < reorder point
	if got := level.Status(); got != StockStatusLowStock {
		t.Errorf("expected LOW_STOCK, got %s", got)
	}

	level.ReservedQuantity = 10
	if got := level.Status(); got != StockStatusOutOfStock {
		t.Errorf("expected OUT_OF_STOCK, got %s", got)
	}
}

func TestReservationReleaseIdempotent(t *testing.T) {
	res := &StockReservation{ID: "res-1", Quantity: 2}

	if !res.Release() {
		t.Error("first release should report true")
	}
	if res.Release() {
		t.Error("second release should report false")
	}
	if !res.IsReleased {
		t.Error("reservation should stay released")
	}
}

func TestMovementSnapshotsBeforeAndAfter(t *testing.T) {
	level := newTestLevel(10, 0)

	mv := NewMovement("mv-1", level, MovementTypeSale, -3, LockRef("lock-1"), "checkout", "")
	if mv.QuantityBefore != 10 {
		t.Fatalf("expected before quantity 10, got %d", mv.QuantityBefore)
	}

	if err := level.Reserve(3); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	mv.Complete(level)

	if mv.ReservedAfter != 3 {
		t.Errorf("expected reserved after 3, got %d", mv.ReservedAfter)
	}
	if mv.AvailableAfter != 7 {
		t.Errorf("expected available after 7, got %d", mv.AvailableAfter)
	}
	if mv.MovementDate.IsZero() {
		t.Error("expected movement date to be stamped on completion")
	}
}
