// internal/service/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"storefront/internal/service/inventory/domain"
)

// MemoryInventoryRepository 是 domain.Repository 的进程内实现。
// 用于测试和本地运行。InTx 在副本上执行写操作，fn 失败时整体丢弃，
// 成功后一次性换入，与数据库事务的提交/回滚语义对齐。
type MemoryInventoryRepository struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	levels       map[string]*domain.InventoryLevel // key: variant|warehouse
	levelsByID   map[string]*domain.InventoryLevel
	reservations map[string]*domain.StockReservation
	movements    []*domain.StockMovement
	alerts       map[string]*domain.LowStockAlert
}

func newMemState() *memState {
	return &memState{
		levels:       make(map[string]*domain.InventoryLevel),
		levelsByID:   make(map[string]*domain.InventoryLevel),
		reservations: make(map[string]*domain.StockReservation),
		alerts:       make(map[string]*domain.LowStockAlert),
	}
}

func (s *memState) clone() *memState {
	next := newMemState()
	for k, v := range s.levels {
		c := *v
		next.levels[k] = &c
		next.levelsByID[c.ID] = &c
	}
	for k, v := range s.reservations {
		c := *v
		next.reservations[k] = &c
	}
	next.movements = append(next.movements, s.movements...)
	for k, v := range s.alerts {
		c := *v
		next.alerts[k] = &c
	}
	return next
}

// NewMemoryInventoryRepository 创建一个空的内存仓储。
func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{state: newMemState()}
}

// SeedLevel 预置一个库存水位，测试和本地环境用。
func (m *MemoryInventoryRepository) SeedLevel(level *domain.InventoryLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *level
	m.state.levels[memLevelKey(c.VariantID, c.WarehouseID)] = &c
	m.state.levelsByID[c.ID] = &c
}

func memLevelKey(variantID, warehouseID string) string {
	return variantID + "|" + warehouseID
}

// InTx 在状态副本上执行 fn，成功后换入副本。
func (m *MemoryInventoryRepository) InTx(ctx context.Context, fn func(store domain.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txState := m.state.clone()
	if err := fn(&memStore{state: txState}); err != nil {
		return err
	}
	m.state = txState
	return nil
}

// 事务外的读写直接委托给一个临时 memStore，仍受互斥锁保护。
func (m *MemoryInventoryRepository) withLock(fn func(store *memStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memStore{state: m.state})
}

func (m *MemoryInventoryRepository) LevelForUpdate(ctx context.Context, variantID, warehouseID string) (level *domain.InventoryLevel, err error) {
	err = m.withLock(func(s *memStore) error {
		level, err = s.LevelForUpdate(ctx, variantID, warehouseID)
		return err
	})
	return level, err
}

func (m *MemoryInventoryRepository) GetLevel(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	return m.LevelForUpdate(ctx, variantID, warehouseID)
}

func (m *MemoryInventoryRepository) SaveLevel(ctx context.Context, level *domain.InventoryLevel) error {
	return m.withLock(func(s *memStore) error { return s.SaveLevel(ctx, level) })
}

func (m *MemoryInventoryRepository) CreateReservation(ctx context.Context, res *domain.StockReservation) error {
	return m.withLock(func(s *memStore) error { return s.CreateReservation(ctx, res) })
}

func (m *MemoryInventoryRepository) SaveReservation(ctx context.Context, res *domain.StockReservation) error {
	return m.withLock(func(s *memStore) error { return s.SaveReservation(ctx, res) })
}

func (m *MemoryInventoryRepository) GetReservation(ctx context.Context, id string) (res *domain.StockReservation, err error) {
	err = m.withLock(func(s *memStore) error {
		res, err = s.GetReservation(ctx, id)
		return err
	})
	return res, err
}

func (m *MemoryInventoryRepository) ReservationsByLock(ctx context.Context, lockID string) (out []*domain.StockReservation, err error) {
	err = m.withLock(func(s *memStore) error {
		out, err = s.ReservationsByLock(ctx, lockID)
		return err
	})
	return out, err
}

func (m *MemoryInventoryRepository) CreateMovement(ctx context.Context, mv *domain.StockMovement) error {
	return m.withLock(func(s *memStore) error { return s.CreateMovement(ctx, mv) })
}

func (m *MemoryInventoryRepository) MovementsByLevel(ctx context.Context, levelID string) (out []*domain.StockMovement, err error) {
	err = m.withLock(func(s *memStore) error {
		out, err = s.MovementsByLevel(ctx, levelID)
		return err
	})
	return out, err
}

func (m *MemoryInventoryRepository) OpenAlert(ctx context.Context, levelID string) (alert *domain.LowStockAlert, err error) {
	err = m.withLock(func(s *memStore) error {
		alert, err = s.OpenAlert(ctx, levelID)
		return err
	})
	return alert, err
}

func (m *MemoryInventoryRepository) CreateAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	return m.withLock(func(s *memStore) error { return s.CreateAlert(ctx, alert) })
}

func (m *MemoryInventoryRepository) SaveAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	return m.withLock(func(s *memStore) error { return s.SaveAlert(ctx, alert) })
}

// memStore 是绑定到某份状态的 domain.Store 实现。
// 读取返回副本，写入存副本，调用方持有的指针不会引用内部状态。
type memStore struct {
	state *memState
}

func (s *memStore) LevelForUpdate(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	level, ok := s.state.levels[memLevelKey(variantID, warehouseID)]
	if !ok {
		return nil, domain.ErrLevelNotFound
	}
	c := *level
	return &c, nil
}

func (s *memStore) GetLevel(ctx context.Context, variantID, warehouseID string) (*domain.InventoryLevel, error) {
	return s.LevelForUpdate(ctx, variantID, warehouseID)
}

func (s *memStore) SaveLevel(ctx context.Context, level *domain.InventoryLevel) error {
	c := *level
	s.state.levels[memLevelKey(c.VariantID, c.WarehouseID)] = &c
	s.state.levelsByID[c.ID] = &c
	return nil
}

func (s *memStore) CreateReservation(ctx context.Context, res *domain.StockReservation) error {
	c := *res
	s.state.reservations[c.ID] = &c
	return nil
}

func (s *memStore) SaveReservation(ctx context.Context, res *domain.StockReservation) error {
	c := *res
	s.state.reservations[c.ID] = &c
	return nil
}

func (s *memStore) GetReservation(ctx context.Context, id string) (*domain.StockReservation, error) {
	res, ok := s.state.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	c := *res
	return &c, nil
}

func (s *memStore) ReservationsByLock(ctx context.Context, lockID string) ([]*domain.StockReservation, error) {
	out := make([]*domain.StockReservation, 0)
	for _, res := range s.state.reservations {
		if res.Reference.Kind == domain.ReferenceLock && res.Reference.ID == lockID {
			c := *res
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LockedAt.Before(out[j].LockedAt) })
	return out, nil
}

func (s *memStore) CreateMovement(ctx context.Context, mv *domain.StockMovement) error {
	c := *mv
	s.state.movements = append(s.state.movements, &c)
	return nil
}

func (s *memStore) MovementsByLevel(ctx context.Context, levelID string) ([]*domain.StockMovement, error) {
	out := make([]*domain.StockMovement, 0)
	for _, mv := range s.state.movements {
		if mv.LevelID == levelID {
			c := *mv
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MovementDate.Before(out[j].MovementDate) })
	return out, nil
}

func (s *memStore) OpenAlert(ctx context.Context, levelID string) (*domain.LowStockAlert, error) {
	for _, alert := range s.state.alerts {
		if alert.LevelID == levelID && !alert.IsResolved {
			c := *alert
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	c := *alert
	s.state.alerts[c.ID] = &c
	return nil
}

func (s *memStore) SaveAlert(ctx context.Context, alert *domain.LowStockAlert) error {
	c := *alert
	s.state.alerts[c.ID] = &c
	return nil
}
