// internal/service/inventory/infrastructure/mapper.go
package infrastructure

import (
	"storefront/internal/service/inventory/domain"
)

// ToDomainLevel 将数据库模型转换为领域模型
func ToDomainLevel(model *InventoryLevelModel) *domain.InventoryLevel {
	if model == nil {
		return nil
	}
	return &domain.InventoryLevel{
		ID:               model.ID,
		VariantID:        model.VariantID,
		WarehouseID:      model.WarehouseID,
		Quantity:         model.Quantity,
		ReservedQuantity: model.ReservedQuantity,
		IncomingQuantity: model.IncomingQuantity,
		DamagedQuantity:  model.DamagedQuantity,
		PreorderQuantity: model.PreorderQuantity,
		BackorderLimit:   model.BackorderLimit,
		ReorderPoint:     model.ReorderPoint,
		SafetyStockLevel: model.SafetyStockLevel,
		ReorderQuantity:  model.ReorderQuantity,
		UpdatedAt:        model.UpdatedAt,
	}
}

// FromDomainLevel 将领域模型转换为数据库模型
func FromDomainLevel(dmn *domain.InventoryLevel) *InventoryLevelModel {
	if dmn == nil {
		return nil
	}
	return &InventoryLevelModel{
		ID:               dmn.ID,
		VariantID:        dmn.VariantID,
		WarehouseID:      dmn.WarehouseID,
		Quantity:         dmn.Quantity,
		ReservedQuantity: dmn.ReservedQuantity,
		IncomingQuantity: dmn.IncomingQuantity,
		DamagedQuantity:  dmn.DamagedQuantity,
		PreorderQuantity: dmn.PreorderQuantity,
		BackorderLimit:   dmn.BackorderLimit,
		ReorderPoint:     dmn.ReorderPoint,
		SafetyStockLevel: dmn.SafetyStockLevel,
		ReorderQuantity:  dmn.ReorderQuantity,
		UpdatedAt:        dmn.UpdatedAt,
	}
}

// ToDomainReservation 将数据库模型转换为领域模型
func ToDomainReservation(model *StockReservationModel) *domain.StockReservation {
	if model == nil {
		return nil
	}
	return &domain.StockReservation{
		ID:               model.ID,
		VariantID:        model.VariantID,
		WarehouseID:      model.WarehouseID,
		LevelID:          model.LevelID,
		Quantity:         model.Quantity,
		ReservedQuantity: model.ReservedQuantity,
		Status:           domain.ReservationStatus(model.Status),
		Reference:        domain.Reference{Kind: domain.ReferenceKind(model.ReferenceKind), ID: model.ReferenceID},
		LockToken:        model.LockToken,
		SessionID:        model.SessionID,
		UserID:           model.UserID,
		LockedAt:         model.LockedAt,
		LockExpiresAt:    model.LockExpiresAt,
		ExpiresAt:        model.ExpiresAt,
		IsReleased:       model.IsReleased,
		ReleasedAt:       model.ReleasedAt,
	}
}

// FromDomainReservation 将领域模型转换为数据库模型
func FromDomainReservation(dmn *domain.StockReservation) *StockReservationModel {
	if dmn == nil {
		return nil
	}
	return &StockReservationModel{
		ID:               dmn.ID,
		VariantID:        dmn.VariantID,
		WarehouseID:      dmn.WarehouseID,
		LevelID:          dmn.LevelID,
		Quantity:         dmn.Quantity,
		ReservedQuantity: dmn.ReservedQuantity,
		Status:           string(dmn.Status),
		ReferenceKind:    string(dmn.Reference.Kind),
		ReferenceID:      dmn.Reference.ID,
		LockToken:        dmn.LockToken,
		SessionID:        dmn.SessionID,
		UserID:           dmn.UserID,
		LockedAt:         dmn.LockedAt,
		LockExpiresAt:    dmn.LockExpiresAt,
		ExpiresAt:        dmn.ExpiresAt,
		IsReleased:       dmn.IsReleased,
		ReleasedAt:       dmn.ReleasedAt,
	}
}

// ToDomainMovement 将数据库模型转换为领域模型
func ToDomainMovement(model *StockMovementModel) *domain.StockMovement {
	if model == nil {
		return nil
	}
	return &domain.StockMovement{
		ID:              model.ID,
		VariantID:       model.VariantID,
		WarehouseID:     model.WarehouseID,
		LevelID:         model.LevelID,
		Type:            domain.MovementType(model.Type),
		Delta:           model.Delta,
		QuantityBefore:  model.QuantityBefore,
		QuantityAfter:   model.QuantityAfter,
		ReservedBefore:  model.ReservedBefore,
		ReservedAfter:   model.ReservedAfter,
		AvailableBefore: model.AvailableBefore,
		AvailableAfter:  model.AvailableAfter,
		Reference:       domain.Reference{Kind: domain.ReferenceKind(model.ReferenceKind), ID: model.ReferenceID},
		Reason:          model.Reason,
		ActorID:         model.ActorID,
		MovementDate:    model.MovementDate,
	}
}

// FromDomainMovement 将领域模型转换为数据库模型
func FromDomainMovement(dmn *domain.StockMovement) *StockMovementModel {
	if dmn == nil {
		return nil
	}
	return &StockMovementModel{
		ID:              dmn.ID,
		VariantID:       dmn.VariantID,
		WarehouseID:     dmn.WarehouseID,
		LevelID:         dmn.LevelID,
		Type:            string(dmn.Type),
		Delta:           dmn.Delta,
		QuantityBefore:  dmn.QuantityBefore,
		QuantityAfter:   dmn.QuantityAfter,
		ReservedBefore:  dmn.ReservedBefore,
		ReservedAfter:   dmn.ReservedAfter,
		AvailableBefore: dmn.AvailableBefore,
		AvailableAfter:  dmn.AvailableAfter,
		ReferenceKind:   string(dmn.Reference.Kind),
		ReferenceID:     dmn.Reference.ID,
		Reason:          dmn.Reason,
		ActorID:         dmn.ActorID,
		MovementDate:    dmn.MovementDate,
	}
}

// ToDomainAlert 将数据库模型转换为领域模型
func ToDomainAlert(model *LowStockAlertModel) *domain.LowStockAlert {
	if model == nil {
		return nil
	}
	return &domain.LowStockAlert{
		ID:               model.ID,
		LevelID:          model.LevelID,
		VariantID:        model.VariantID,
		WarehouseID:      model.WarehouseID,
		CurrentQuantity:  model.CurrentQuantity,
		ReorderPoint:     model.ReorderPoint,
		IsResolved:       model.IsResolved,
		NotificationSent: model.NotificationSent,
		NotifiedAt:       model.NotifiedAt,
		ResolvedAt:       model.ResolvedAt,
		ResolvedBy:       model.ResolvedBy,
		CreatedAt:        model.CreatedAt,
	}
}

// FromDomainAlert 将领域模型转换为数据库模型
func FromDomainAlert(dmn *domain.LowStockAlert) *LowStockAlertModel {
	if dmn == nil {
		return nil
	}
	return &LowStockAlertModel{
		ID:               dmn.ID,
		LevelID:          dmn.LevelID,
		VariantID:        dmn.VariantID,
		WarehouseID:      dmn.WarehouseID,
		CurrentQuantity:  dmn.CurrentQuantity,
		ReorderPoint:     dmn.ReorderPoint,
		IsResolved:       dmn.IsResolved,
		NotificationSent: dmn.NotificationSent,
		NotifiedAt:       dmn.NotifiedAt,
		ResolvedAt:       dmn.ResolvedAt,
		ResolvedBy:       dmn.ResolvedBy,
		CreatedAt:        dmn.CreatedAt,
	}
}
