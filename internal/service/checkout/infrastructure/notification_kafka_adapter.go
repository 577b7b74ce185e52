package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
)

// KafkaNotificationAdapter 把结算锁终态事件和低库存告警发到 Kafka。
// 同时实现结算侧的 NotificationProducer 与库存侧的 AlertNotifier。
type KafkaNotificationAdapter struct {
	lockEvents *kafka.Writer
	alertEvents *kafka.Writer
}

func NewKafkaNotificationAdapter(lockEvents, alertEvents *kafka.Writer) *KafkaNotificationAdapter {
	return &KafkaNotificationAdapter{lockEvents: lockEvents, alertEvents: alertEvents}
}

type lockEvent struct {
	EventType     string                `json:"event_type"`
	LockID        string                `json:"lock_id"`
	CartID        string                `json:"cart_id"`
	UserID        string                `json:"user_id"`
	State         string                `json:"state"`
	TotalAmount   int64                 `json:"total_amount"`
	CurrencyCode  string                `json:"currency_code"`
	FailureReason *domain.FailureReason `json:"failure_reason,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

func (a *KafkaNotificationAdapter) LockCompleted(ctx context.Context, lock *domain.CheckoutLock) error {
	return a.produceLockEvent(ctx, "checkout.lock.completed", lock)
}

func (a *KafkaNotificationAdapter) LockFailed(ctx context.Context, lock *domain.CheckoutLock) error {
	return a.produceLockEvent(ctx, "checkout.lock.failed", lock)
}

func (a *KafkaNotificationAdapter) produceLockEvent(ctx context.Context, eventType string, lock *domain.CheckoutLock) error {
	payload, err := json.Marshal(lockEvent{
		EventType:     eventType,
		LockID:        lock.ID,
		CartID:        lock.CartID,
		UserID:        lock.UserID,
		State:         string(lock.State),
		TotalAmount:   lock.TotalAmount,
		CurrencyCode:  lock.CurrencyCode,
		FailureReason: lock.FailureReason,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.lockEvents, []byte(lock.CartID), payload)
}

type alertEvent struct {
	EventType   string     `json:"event_type"`
	AlertID     string     `json:"alert_id"`
	VariantID   string     `json:"variant_id"`
	WarehouseID string     `json:"warehouse_id"`
	Available   int        `json:"available_quantity"`
	ReorderPoint int       `json:"reorder_point"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func (a *KafkaNotificationAdapter) LowStockRaised(ctx context.Context, alert *invdomain.LowStockAlert) error {
	return a.produceAlertEvent(ctx, "inventory.low_stock.raised", alert)
}

func (a *KafkaNotificationAdapter) LowStockResolved(ctx context.Context, alert *invdomain.LowStockAlert) error {
	return a.produceAlertEvent(ctx, "inventory.low_stock.resolved", alert)
}

func (a *KafkaNotificationAdapter) produceAlertEvent(ctx context.Context, eventType string, alert *invdomain.LowStockAlert) error {
	payload, err := json.Marshal(alertEvent{
		EventType:    eventType,
		AlertID:      alert.ID,
		VariantID:    alert.VariantID,
		WarehouseID:  alert.WarehouseID,
		Available:    alert.CurrentQuantity,
		ReorderPoint: alert.ReorderPoint,
		ResolvedBy:   alert.ResolvedBy,
		OccurredAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.alertEvents, []byte(alert.VariantID), payload)
}
