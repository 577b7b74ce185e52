package infrastructure

import (
	"context"

	"storefront/internal/service/checkout/domain/port"
	invapp "storefront/internal/service/inventory/application"
	invdomain "storefront/internal/service/inventory/domain"
)

// InventoryAdapter 把库存引擎适配成结算服务的 StockReserver 端口。
type InventoryAdapter struct {
	engine *invapp.Engine
}

func NewInventoryAdapter(engine *invapp.Engine) *InventoryAdapter {
	return &InventoryAdapter{engine: engine}
}

func (a *InventoryAdapter) ReserveForLock(ctx context.Context, req port.ReservationRequest) ([]port.ReservedLine, error) {
	lines := make([]invapp.ReserveLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, invapp.ReserveLine{
			VariantID:   l.VariantID,
			WarehouseID: l.WarehouseID,
			Quantity:    l.Quantity,
		})
	}

	reservations, err := a.engine.Reserve(ctx, invapp.ReserveCommand{
		Owner:         invdomain.LockRef(req.LockID),
		LockToken:     req.LockToken,
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		LockExpiresAt: req.ExpiresAt,
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}
	return toReservedLines(reservations), nil
}

func (a *InventoryAdapter) ReleaseForLock(ctx context.Context, lockID string) error {
	return a.engine.ReleaseByLock(ctx, lockID)
}

func (a *InventoryAdapter) ConfirmForLock(ctx context.Context, lockID, orderID string) error {
	return a.engine.ConfirmByLock(ctx, lockID, invdomain.OrderRef(orderID))
}

func (a *InventoryAdapter) ReservationsForLock(ctx context.Context, lockID string) ([]port.ReservedLine, error) {
	reservations, err := a.engine.ReservationsByLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	return toReservedLines(reservations), nil
}

func toReservedLines(reservations []*invdomain.StockReservation) []port.ReservedLine {
	out := make([]port.ReservedLine, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, port.ReservedLine{
			ReservationID: res.ID,
			VariantID:     res.VariantID,
			WarehouseID:   res.WarehouseID,
			Quantity:      res.Quantity,
		})
	}
	return out
}
