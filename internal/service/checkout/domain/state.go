package domain

// LockState 表示结算锁所处的状态机节点。
// 状态只能沿 pending -> locking_prices -> authorizing -> completed 单向推进，
// 任意非终态都可以转入 failed。
type LockState string

const (
	StatePending       LockState = "pending"
	StateLockingPrices LockState = "locking_prices"
	StateAuthorizing   LockState = "authorizing"
	StateCompleted     LockState = "completed"
	StateFailed        LockState = "failed"
)

// IsTerminal 终态之后任何转换都被拒绝。
func (s LockState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Phase 标记失败发生在哪个环节，写入 FailureReason 供排查。
type Phase string

const (
	PhasePricing Phase = "pricing"
	PhaseStock   Phase = "stock"
	PhasePayment Phase = "payment"
	PhaseExpiry  Phase = "expiry"
)

// FailureReason 记录一次结算锁失败的结构化原因。
type FailureReason struct {
	Phase   Phase  `json:"phase"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
