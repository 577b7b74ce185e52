package infrastructure

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/checkout/domain/port"
)

// CartModel 购物车头。
type CartModel struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	CurrencyCode string `gorm:"type:varchar(3)"`
}

func (CartModel) TableName() string {
	return "carts"
}

// CartLineModel 购物车行。
type CartLineModel struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	CartID      string `gorm:"type:varchar(64);index:idx_cart_line_cart"`
	VariantID   string `gorm:"type:varchar(64)"`
	WarehouseID string `gorm:"type:varchar(64)"`
	Quantity    int
}

func (CartLineModel) TableName() string {
	return "cart_lines"
}

// GormCartStore 从数据库读取购物车，实现 CartStore 端口。
type GormCartStore struct {
	db *gorm.DB
}

func NewGormCartStore(db *gorm.DB) *GormCartStore {
	return &GormCartStore{db: db}
}

// AutoMigrate 建表。仅供开发和测试环境使用。
func (s *GormCartStore) AutoMigrate() error {
	return s.db.AutoMigrate(&CartModel{}, &CartLineModel{})
}

func (s *GormCartStore) GetCart(ctx context.Context, cartID string) (*port.Cart, error) {
	var head CartModel
	if err := s.db.WithContext(ctx).Where("id = ?", cartID).First(&head).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart %s not found", cartID)
		}
		return nil, pkgerrors.Wrap(err, "failed to load cart")
	}

	var lineModels []CartLineModel
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("id ASC").Find(&lineModels).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load cart lines")
	}

	cart := &port.Cart{ID: head.ID, CurrencyCode: head.CurrencyCode}
	for _, m := range lineModels {
		cart.Lines = append(cart.Lines, port.CartLine{
			LineID:      m.ID,
			VariantID:   m.VariantID,
			WarehouseID: m.WarehouseID,
			Quantity:    m.Quantity,
		})
	}
	return cart, nil
}
