package infrastructure

import "time"

// CheckoutLockModel 是 domain.CheckoutLock 的数据库模型。
// ActiveCartID 只在锁处于活动状态时等于 CartID，终态后置 NULL；
// 唯一索引允许多个 NULL，因此"每个购物车最多一把活动锁"由数据库兜底。
type CheckoutLockModel struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)"`
	CartID       string  `gorm:"type:varchar(64);index:idx_lock_cart"`
	ActiveCartID *string `gorm:"type:varchar(64);uniqueIndex:uniq_lock_active_cart"`
	SessionID    string  `gorm:"type:varchar(64)"`
	UserID       string  `gorm:"type:varchar(64)"`
	LockToken    string  `gorm:"type:varchar(36);uniqueIndex:uniq_lock_token"`

	State         string `gorm:"type:varchar(20);index:idx_lock_state_expiry,priority:1"`
	Phase         string `gorm:"type:varchar(20)"` // 空串表示尚未进入任何环节
	FailureReason string `gorm:"type:text"`        // JSON，空串表示无

	CurrencyCode string `gorm:"type:varchar(3)"`
	TotalAmount  int64

	ExpiresAt   time.Time `gorm:"index:idx_lock_state_expiry,priority:2"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	Metadata string `gorm:"type:text"` // JSON
}

func (CheckoutLockModel) TableName() string {
	return "checkout_locks"
}

// PriceSnapshotModel 是 domain.PriceSnapshot 的数据库模型。只插入，从不更新。
type PriceSnapshotModel struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	LockID string `gorm:"type:varchar(36);index:idx_snapshot_lock"`
	LineID string `gorm:"type:varchar(64)"` // 空串表示购物车级汇总

	VariantID string `gorm:"type:varchar(64)"`
	Quantity  int

	CurrencyCode  string `gorm:"type:varchar(3)"`
	ExchangeRate  string `gorm:"type:varchar(20)"` // 十进制字符串
	UnitPrice     int64
	Subtotal      int64
	DiscountTotal int64
	TaxTotal      int64
	GrandTotal    int64

	AppliedDiscountCodes string `gorm:"type:text"` // JSON 数组，空串表示无
	Breakdown            string `gorm:"type:text"` // JSON 数组

	FrozenAt time.Time
}

func (PriceSnapshotModel) TableName() string {
	return "price_snapshots"
}
