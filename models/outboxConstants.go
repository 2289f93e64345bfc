package models

// Outbox publish statuses for PaymentOutboxRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Event types carried by PaymentOutboxRecord.EventType.
const (
	OutboxEventPaymentProcessed = "PAYMENT_PROCESSED"
)
