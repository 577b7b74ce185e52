package port

import "context"

// LineQuote 定价服务对单个购物车行的报价，金额为最小货币单位。
type LineQuote struct {
	LineID       string
	VariantID    string
	Quantity     int
	CurrencyCode string
	UnitPrice    int64
	Discount     int64
	Tax          int64
	// ExchangeRate 报价货币对账户货币的汇率，十进制字符串，避免浮点误差。
	ExchangeRate  string
	DiscountCodes []string
}

// CartQuote 购物车级别的附加费用。
type CartQuote struct {
	CurrencyCode  string
	ShippingFee   int64
	CartDiscount  int64
	ExchangeRate  string
	DiscountCodes []string
}

// PricingOracle 对接下游定价服务。
// 实现必须在报价失败时返回错误而不是返回零值报价。
type PricingOracle interface {
	QuoteLine(ctx context.Context, cartID, lineID, variantID string, quantity int) (*LineQuote, error)
	QuoteCart(ctx context.Context, cartID string) (*CartQuote, error)
}
