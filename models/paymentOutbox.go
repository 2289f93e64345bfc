package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/expenses_backend/config"
	"bitbucket.org/mmdatafocus/expenses_backend/utils"
	"bitbucket.org/mmdatafocus/expenses_backend/workflow"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentOutboxRecord is the transactional outbox row for payment events.
// ApplyTransition writes it in the same DB transaction that moves an expense
// to paid; the outbox dispatcher publishes it to Pub/Sub after commit.
type PaymentOutboxRecord struct {
	ID         int       `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	ExpenseId  int       `gorm:"index;not null" json:"expense_id"`
	EmployeeId int       `gorm:"index;not null" json:"employee_id"`
	EventType  string    `gorm:"size:40;not null" json:"event_type"`
	Payload    []byte    `gorm:"type:blob" json:"payload"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueuePaymentEvent writes the PAYMENT_PROCESSED outbox row inside the
// caller's DB transaction but does NOT publish to Pub/Sub. Publishing is
// performed asynchronously by the outbox dispatcher after commit.
func EnqueuePaymentEvent(ctx context.Context, tx *gorm.DB, expense *Expense, payment *workflow.PaymentDetails) error {
	payload, err := json.Marshal(payment)
	if err != nil {
		return err
	}

	record := PaymentOutboxRecord{
		ExpenseId:     expense.ID,
		EmployeeId:    expense.EmployeeId,
		EventType:     OutboxEventPaymentProcessed,
		Payload:       payload,
		OccurredAt:    payment.ProcessedAt,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// HasPaymentEvent reports whether a payment event was already enqueued for the
// expense. The duplicate-payment rule reaches it through the transaction the
// transition runs in, so an uncommitted enqueue in the same transaction counts.
func HasPaymentEvent(ctx context.Context, db *gorm.DB, expenseId int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&PaymentOutboxRecord{}).
		Where("expense_id = ? AND event_type = ?", expenseId, OutboxEventPaymentProcessed).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func ConvertToPaymentMessage(record PaymentOutboxRecord) config.PaymentEventMessage {
	return config.PaymentEventMessage{
		ID:            record.ID,
		ExpenseId:     record.ExpenseId,
		EmployeeId:    record.EmployeeId,
		EventType:     record.EventType,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// PaymentOutboxStatus is a finance-facing view of the latest outbox row for an expense.
type PaymentOutboxStatus struct {
	RecordId         int        `json:"record_id"`
	ExpenseId        int        `json:"expense_id"`
	EventType        string     `json:"event_type"`
	PublishStatus    string     `json:"publish_status"`
	PublishAttempts  int        `json:"publish_attempts"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LastPublishError *string    `json:"last_publish_error"`
	CreatedAt        time.Time  `json:"created_at"`
	PublishedAt      *time.Time `json:"published_at"`
}

func GetPaymentOutboxStatus(ctx context.Context, expenseId int) (*PaymentOutboxStatus, error) {
	db := config.GetDB()
	var rec PaymentOutboxRecord
	if err := db.WithContext(ctx).
		Where("expense_id = ?", expenseId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}

	return &PaymentOutboxStatus{
		RecordId:         rec.ID,
		ExpenseId:        rec.ExpenseId,
		EventType:        rec.EventType,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}

// ReleaseStuckPaymentOutbox force-releases PROCESSING rows whose lock is older
// than the given age. The dispatcher does this on its own after LockTimeout;
// this is the manual override for rows wedged by a crashed publisher.
func ReleaseStuckPaymentOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	res := db.WithContext(ctx).
		Model(&PaymentOutboxRecord{}).
		Where("publish_status = ? AND locked_at IS NOT NULL AND locked_at < ?", OutboxPublishStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"publish_status":  OutboxPublishStatusPending,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": &now,
		})
	return res.RowsAffected, res.Error
}

// RedriveDeadPaymentOutbox moves every DEAD row back to PENDING with its
// attempt counter reset, so the dispatcher gives it a fresh run of retries.
func RedriveDeadPaymentOutbox(ctx context.Context) (int64, error) {
	db := config.GetDB()
	now := time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&PaymentOutboxRecord{}).
		Where("publish_status = ?", OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    &now,
			"last_publish_error": nil,
		})
	return res.RowsAffected, res.Error
}

// RetryPaymentOutbox clears failure state on an expense's unsent outbox rows
// so the dispatcher picks them up again on its next poll.
func RetryPaymentOutbox(ctx context.Context, expenseId int) (*PaymentOutboxStatus, error) {
	db := config.GetDB()

	res := db.WithContext(ctx).
		Model(&PaymentOutboxRecord{}).
		Where("expense_id = ? AND publish_status IN ?", expenseId, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"locked_at":          nil,
			"locked_by":          nil,
			"publish_status":     OutboxPublishStatusPending,
			"next_attempt_at":    nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return GetPaymentOutboxStatus(ctx, expenseId)
}
