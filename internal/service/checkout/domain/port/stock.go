package port

import (
	"context"
	"time"
)

// ReservationLine 需要占用库存的一行。
type ReservationLine struct {
	LineID      string
	VariantID   string
	WarehouseID string
	Quantity    int
}

// ReservationRequest 以结算锁为归属方的批量占用请求。
type ReservationRequest struct {
	LockID    string
	LockToken string
	SessionID string
	UserID    string
	ExpiresAt time.Time
	Lines     []ReservationLine
}

// ReservedLine 占用成功后的回执。
type ReservedLine struct {
	ReservationID string
	VariantID     string
	WarehouseID   string
	Quantity      int
}

// StockReserver 对接库存预占引擎。
// ReserveForLock 全有或全无；ReleaseForLock 幂等，已确认的占用不会被释放。
type StockReserver interface {
	ReserveForLock(ctx context.Context, req ReservationRequest) ([]ReservedLine, error)
	ReleaseForLock(ctx context.Context, lockID string) error
	ConfirmForLock(ctx context.Context, lockID, orderID string) error
	ReservationsForLock(ctx context.Context, lockID string) ([]ReservedLine, error)
}
