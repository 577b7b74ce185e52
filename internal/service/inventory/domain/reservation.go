// internal/service/inventory/domain/reservation.go
package domain

import "time"

// ReservationStatus 标识预占记录的用途阶段。
type ReservationStatus string

const (
	ReservationStatusCartHeld       ReservationStatus = "CART_HELD"       // 结算中持有
	ReservationStatusOrderConfirmed ReservationStatus = "ORDER_CONFIRMED" // 订单已确认，不再受锁过期影响
	ReservationStatusManual         ReservationStatus = "MANUAL"          // 人工占用
)

// StockReservation 是一次针对 (variant, warehouse) 的库存占用声明。
// 经确认（ORDER_CONFIRMED）的预占与锁过期解绑，只能被显式释放。
type StockReservation struct {
	ID          string
	VariantID   string
	WarehouseID string
	LevelID     string

	Quantity         int // 请求数量
	ReservedQuantity int // 实际占用数量；结算路径下恒等于 Quantity（全有或全无）

	Status    ReservationStatus
	Reference Reference // 归属的锁/订单/操作者
	LockToken string
	SessionID string
	UserID    string

	LockedAt      time.Time
	LockExpiresAt time.Time
	ExpiresAt     time.Time
	IsReleased    bool
	ReleasedAt    *time.Time
}

// Release 将预占标记为已释放。重复调用是幂等的，返回是否真正发生了释放。
func (r *StockReservation) Release() bool {
	if r.IsReleased {
		return false
	}
	now := time.Now()
	r.IsReleased = true
	r.ReleasedAt = &now
	return true
}

// Confirm 将预占升级为订单确认状态，并与锁过期解绑。
func (r *StockReservation) Confirm(orderRef Reference) {
	r.Status = ReservationStatusOrderConfirmed
	if !orderRef.IsZero() {
		r.Reference = orderRef
	}
	r.LockExpiresAt = time.Time{}
	r.ExpiresAt = time.Time{}
}
