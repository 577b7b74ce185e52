package domain

import "time"

// PriceSnapshot 是结算锁创建后对单个购物车行冻结的价格快照。
// 快照一经写入不可修改，所有金额均为最小货币单位（分），不出现浮点。
// LineID 为空表示购物车级汇总快照。
type PriceSnapshot struct {
	ID     string
	LockID string
	LineID string

	VariantID string
	Quantity  int

	CurrencyCode string
	// ExchangeRate 冻结时刻报价货币对账户货币的汇率，十进制字符串。
	ExchangeRate  string
	UnitPrice     int64
	Subtotal      int64
	DiscountTotal int64
	TaxTotal      int64
	GrandTotal    int64

	// AppliedDiscountCodes 冻结时生效的优惠码。
	AppliedDiscountCodes []string

	// Breakdown 记录构成总价的各个分项，便于对账。
	Breakdown []BreakdownEntry

	FrozenAt time.Time
}

// BreakdownEntry 快照内的单个计价分项，amount 可为负（折扣）。
type BreakdownEntry struct {
	Kind        string `json:"kind"` // unit_price / discount / tax / shipping
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
}

// SumBreakdown 分项之和，应当等于 GrandTotal。
func (s *PriceSnapshot) SumBreakdown() int64 {
	var total int64
	for _, e := range s.Breakdown {
		total += e.Amount
	}
	return total
}
