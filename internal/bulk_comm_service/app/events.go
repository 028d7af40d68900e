package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

// NATS subjects for batch lifecycle events consumed elsewhere in the backend.
const (
	SubjectBatchCreated   = "comm.batch.created"
	SubjectBatchCompleted = "comm.batch.completed"
	SubjectBatchCancelled = "comm.batch.cancelled"
)

// EventPublisher publishes service events. Satisfied by messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// BatchEvent is the payload published on batch lifecycle transitions.
type BatchEvent struct {
	BatchID    uuid.UUID          `json:"batch_id"`
	OrgID      uuid.UUID          `json:"org_id"`
	Channel    domain.Channel     `json:"channel"`
	Status     domain.BatchStatus `json:"status"`
	TotalCount int                `json:"total_count"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// publishBatchEvent publishes best-effort: a broker outage must never fail the
// underlying batch operation.
func publishBatchEvent(ctx context.Context, publisher EventPublisher, logger *slog.Logger, subject string, batch *domain.Batch) {
	if publisher == nil {
		return
	}
	event := BatchEvent{
		BatchID:    batch.ID,
		OrgID:      batch.OrgID,
		Channel:    batch.Channel,
		Status:     batch.Status,
		TotalCount: batch.TotalCount,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal batch event", "error", err, "subject", subject, "batch_id", batch.ID)
		return
	}
	if err := publisher.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Failed to publish batch event", "error", err, "subject", subject, "batch_id", batch.ID)
	}
}
