package domain

import (
	"errors"
	"fmt"
)

// ErrLockNotFound 按 id 或 token 找不到结算锁。
var ErrLockNotFound = errors.New("checkout lock not found")

// ConflictError 状态机冲突：购物车已有活动锁，或非法的状态转换。
type ConflictError struct {
	LockID    string
	Current   string
	Attempted string
}

func NewConflictError(lockID, current, attempted string) *ConflictError {
	return &ConflictError{LockID: lockID, Current: current, Attempted: attempted}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("checkout lock %s: cannot move from %s to %s", e.LockID, e.Current, e.Attempted)
}

// AlreadyTerminalError 对 completed / failed 锁的任何写操作都会得到它。
type AlreadyTerminalError struct {
	LockID string
	State  LockState
}

func NewAlreadyTerminalError(lockID string, state LockState) *AlreadyTerminalError {
	return &AlreadyTerminalError{LockID: lockID, State: state}
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("checkout lock %s is already terminal (%s)", e.LockID, e.State)
}

// ExpiredLockError 在锁过期后继续推进时返回。
type ExpiredLockError struct {
	LockID string
}

func (e *ExpiredLockError) Error() string {
	return fmt.Sprintf("checkout lock %s has expired", e.LockID)
}

// PricingError 定价阶段失败：拿不到报价、币种不一致或金额非法。
type PricingError struct {
	LockID  string
	LineID  string
	Message string
}

func (e *PricingError) Error() string {
	if e.LineID != "" {
		return fmt.Sprintf("pricing failed for lock %s line %s: %s", e.LockID, e.LineID, e.Message)
	}
	return fmt.Sprintf("pricing failed for lock %s: %s", e.LockID, e.Message)
}

// IsConflict 判断 err 链上是否存在 ConflictError。
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsAlreadyTerminal 判断 err 链上是否存在 AlreadyTerminalError。
func IsAlreadyTerminal(err error) bool {
	var target *AlreadyTerminalError
	return errors.As(err, &target)
}

// IsExpired 判断 err 链上是否存在 ExpiredLockError。
func IsExpired(err error) bool {
	var target *ExpiredLockError
	return errors.As(err, &target)
}

// IsPricing 判断 err 链上是否存在 PricingError。
func IsPricing(err error) bool {
	var target *PricingError
	return errors.As(err, &target)
}
