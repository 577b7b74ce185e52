package port

import "context"

// CartLine 购物车中的一行。
type CartLine struct {
	LineID      string
	VariantID   string
	WarehouseID string
	Quantity    int
}

// Cart 结算时刻的购物车视图。
type Cart struct {
	ID           string
	CurrencyCode string
	Lines        []CartLine
}

// CartStore 读取购物车内容的端口。
type CartStore interface {
	GetCart(ctx context.Context, cartID string) (*Cart, error)
}
