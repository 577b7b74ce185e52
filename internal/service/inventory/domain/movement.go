// internal/service/inventory/domain/movement.go
package domain

import "time"

// MovementType 区分库存流水的来源场景。
type MovementType string

const (
	MovementTypeIn               MovementType = "IN"                // 入库
	MovementTypeOut              MovementType = "OUT"               // 出库
	MovementTypeSale             MovementType = "SALE"              // 结算预占
	MovementTypeReturn           MovementType = "RETURN"            // 预占释放/退回
	MovementTypeManualAdjustment MovementType = "MANUAL_ADJUSTMENT" // 人工修正
	MovementTypeAdjustment       MovementType = "ADJUSTMENT"        // 系统修正
)

// StockMovement 是一条只追加的库存变动审计流水。
// 每次对 InventoryLevel 的原子调整都会落一条，写入后不再变更。
// 同一水位的流水按 MovementDate 重放时，前后快照必须首尾相接。
type StockMovement struct {
	ID          string
	VariantID   string
	WarehouseID string
	LevelID     string

	Type     MovementType
	Delta    int // 本次变动量，预占为负、释放为正

	QuantityBefore  int
	QuantityAfter   int
	ReservedBefore  int
	ReservedAfter   int
	AvailableBefore int
	AvailableAfter  int

	Reference Reference // 引发变动的锁/订单/操作者
	Reason    string
	ActorID   string

	MovementDate time.Time
}

// snapshotBefore 在变更前记录水位快照。
func (m *StockMovement) snapshotBefore(l *InventoryLevel) {
	m.QuantityBefore = l.Quantity
	m.ReservedBefore = l.ReservedQuantity
	m.AvailableBefore = l.AvailableQuantity()
}

// snapshotAfter 在变更后记录水位快照。
func (m *StockMovement) snapshotAfter(l *InventoryLevel) {
	m.QuantityAfter = l.Quantity
	m.ReservedAfter = l.ReservedQuantity
	m.AvailableAfter = l.AvailableQuantity()
}

// NewMovement 构造一条绑定到水位的流水，调用方在变更前创建，
// 变更完成后调用 Complete 补齐后置快照。
func NewMovement(id string, l *InventoryLevel, typ MovementType, delta int, ref Reference, reason, actorID string) *StockMovement {
	m := &StockMovement{
		ID:          id,
		VariantID:   l.VariantID,
		WarehouseID: l.WarehouseID,
		LevelID:     l.ID,
		Type:        typ,
		Delta:       delta,
		Reference:   ref,
		Reason:      reason,
		ActorID:     actorID,
	}
	m.snapshotBefore(l)
	return m
}

// Complete 记录变更后的水位快照并落下流水时间。
func (m *StockMovement) Complete(l *InventoryLevel) {
	m.snapshotAfter(l)
	m.MovementDate = time.Now()
}
