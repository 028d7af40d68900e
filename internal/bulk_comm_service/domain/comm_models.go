package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery channel of a communication.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Priority orders batches relative to each other when claiming queue items.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// BatchStatus defines the possible statuses of a bulk communication batch.
type BatchStatus string

const (
	BatchStatusPending             BatchStatus = "PENDING"
	BatchStatusScheduled           BatchStatus = "SCHEDULED"
	BatchStatusProcessing          BatchStatus = "PROCESSING"
	BatchStatusCompleted           BatchStatus = "COMPLETED"
	BatchStatusCompletedWithErrors BatchStatus = "COMPLETED_WITH_ERRORS"
	BatchStatusCancelled           BatchStatus = "CANCELLED"
)

// Terminal reports whether a batch in this status can still transition.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusCancelled:
		return true
	}
	return false
}

// ItemStatus defines the possible statuses of a single queue item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "PENDING"
	ItemStatusProcessing ItemStatus = "PROCESSING"
	ItemStatusSent       ItemStatus = "SENT"
	ItemStatusFailed     ItemStatus = "FAILED"
	ItemStatusCancelled  ItemStatus = "CANCELLED"
)

// Terminal reports whether an item in this status can still transition.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemStatusSent, ItemStatusFailed, ItemStatusCancelled:
		return true
	}
	return false
}

// Batch represents one bulk-send request covering many recipients.
type Batch struct {
	ID              uuid.UUID   `json:"id"`
	OrgID           uuid.UUID   `json:"org_id"`
	Channel         Channel     `json:"channel"`
	Status          BatchStatus `json:"status"`
	Priority        Priority    `json:"priority"`
	TotalCount      int         `json:"total_count"`
	SentCount       int         `json:"sent_count"`
	FailedCount     int         `json:"failed_count"`
	PendingCount    int         `json:"pending_count"`
	ProcessingCount int         `json:"processing_count"`
	Subject         *string     `json:"subject,omitempty"`
	Content         *string     `json:"content,omitempty"`
	TemplateID      *uuid.UUID  `json:"template_id,omitempty"`
	ScheduledAt     *time.Time  `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CreatedBy       uuid.UUID   `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// QueueItem is one recipient's personalized message within a batch.
// Subject and body are frozen at enqueue time; later template edits do not
// affect already-queued items.
type QueueItem struct {
	ID                uuid.UUID  `json:"id"`
	BatchID           uuid.UUID  `json:"batch_id"`
	OrgID             uuid.UUID  `json:"org_id"`
	RecipientID       uuid.UUID  `json:"recipient_id"`
	Channel           Channel    `json:"channel"`
	Address           string     `json:"address"` // phone for SMS, email address for EMAIL
	Subject           *string    `json:"subject,omitempty"`
	Body              string     `json:"body"`
	Status            ItemStatus `json:"status"`
	RetryCount        int        `json:"retry_count"`
	LastError         *string    `json:"last_error,omitempty"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty"` // future retries and delayed sends
	SentAt            *time.Time `json:"sent_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SkippedRecipient records why a recipient was excluded at enqueue time.
// Never mutated after creation.
type SkippedRecipient struct {
	ID          uuid.UUID `json:"id"`
	BatchID     uuid.UUID `json:"batch_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchCounts is a per-status item tally for one batch.
type BatchCounts struct {
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Cancelled  int `json:"cancelled"`
}

// FailureDetail describes one failed item for status reporting.
type FailureDetail struct {
	RecipientID   uuid.UUID  `json:"recipient_id"`
	RecipientName string     `json:"recipient_name"`
	Error         string     `json:"error"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}
