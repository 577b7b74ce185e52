// internal/service/inventory/domain/reference.go
package domain

import "fmt"

// ReferenceKind 标识预占/流水的归属方类型。
type ReferenceKind string

const (
	ReferenceLock   ReferenceKind = "LOCK"   // 归属于一次结算锁
	ReferenceOrder  ReferenceKind = "ORDER"  // 归属于一笔已确认订单
	ReferenceManual ReferenceKind = "MANUAL" // 人工操作，ID 为操作者标识
)

// Reference 是一个带标签的归属引用，替代松散的 type+id 字符串对。
// 预占和库存流水都通过它指回结算锁、订单或人工操作者。
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   string        `json:"id"`
}

// LockRef 构造指向结算锁的引用。
func LockRef(lockID string) Reference {
	return Reference{Kind: ReferenceLock, ID: lockID}
}

// OrderRef 构造指向订单的引用。
func OrderRef(orderID string) Reference {
	return Reference{Kind: ReferenceOrder, ID: orderID}
}

// ManualRef 构造指向人工操作者的引用。
func ManualRef(actorID string) Reference {
	return Reference{Kind: ReferenceManual, ID: actorID}
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// IsZero 判断引用是否为空。
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}
