package http

import (
	"time"

	"github.com/google/uuid"
)

// CreateBatchRequestDTO is the payload for queueing a bulk communication.
// Either template_id or content must be provided.
type CreateBatchRequestDTO struct {
	RecipientIDs []uuid.UUID `json:"recipient_ids" validate:"required,min=1,dive,required"`
	Channel      string      `json:"channel" validate:"required,oneof=SMS EMAIL"`
	TemplateID   *uuid.UUID  `json:"template_id,omitempty"`
	Subject      *string     `json:"subject,omitempty" validate:"omitempty,max=500"`
	Content      *string     `json:"content,omitempty" validate:"omitempty,max=10000"`
	Priority     string      `json:"priority,omitempty" validate:"omitempty,oneof=HIGH NORMAL LOW"`
	ScheduledAt  *time.Time  `json:"scheduled_at,omitempty"`
}

// PreviewRequestDTO is the payload for a personalization preview.
type PreviewRequestDTO struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Channel     string    `json:"channel" validate:"required,oneof=SMS EMAIL"`
	Content     string    `json:"content" validate:"required,max=10000"`
}

// ProcessQueueRequestDTO optionally overrides the per-cycle item budget.
type ProcessQueueRequestDTO struct {
	BatchSize int `json:"batch_size,omitempty" validate:"omitempty,min=1,max=1000"`
}

// VariablesResponseDTO lists the supported personalization variables.
type VariablesResponseDTO struct {
	Variables []string `json:"variables"`
}
