package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

// BatchFilter narrows batch listings.
type BatchFilter struct {
	OrgID    uuid.NullUUID
	Status   domain.BatchStatus
	Channel  domain.Channel
	PageSize int
	Page     int
}

// ItemFilter narrows item listings within a batch.
type ItemFilter struct {
	Status   domain.ItemStatus
	PageSize int
	Page     int
}

// BatchStore is the persistence surface for batches.
type BatchStore interface {
	// CreateWithItems atomically persists the batch, its queue items (in
	// bounded-size chunks) and the skip records for disqualified recipients.
	CreateWithItems(ctx context.Context, batch *domain.Batch, items []*domain.QueueItem, skipped []*domain.SkippedRecipient) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error)
	// MarkProcessing moves the given batches to PROCESSING and stamps
	// started_at once. Terminal batches are left untouched.
	MarkProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error
	// UpdateStats writes recomputed counters and the resulting status back
	// onto the batch. Terminal batches are never overwritten; the returned
	// bool reports whether a row was updated.
	UpdateStats(ctx context.Context, id uuid.UUID, counts domain.BatchCounts, status domain.BatchStatus, completedAt *time.Time) (bool, error)
	// Cancel transitions a non-terminal batch to CANCELLED, stamping
	// completed_at. Returns domain.ErrInvalidBatchState if the batch is
	// already terminal.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, filter BatchFilter) ([]*domain.Batch, int, error)
}

// QueueItemRepository is the persistence surface for queue items.
type QueueItemRepository interface {
	// ClaimDueForOrg claims up to limit due PENDING items for one
	// organization, moving them to PROCESSING. Rows locked by a concurrent
	// worker are skipped, so multiple processor instances can run in
	// parallel without double-claiming.
	ClaimDueForOrg(ctx context.Context, orgID uuid.UUID, limit, maxRetries int, now time.Time) ([]*domain.QueueItem, error)
	// DueOrganizations lists organizations that currently have claimable work,
	// without locking or mutating any row.
	DueOrganizations(ctx context.Context, maxRetries int, now time.Time) ([]uuid.UUID, error)
	// MarkSent finalizes a PROCESSING item as SENT, recording the
	// provider-assigned message ID.
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) error
	// MarkFailed finalizes a PROCESSING item as FAILED with the error message.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error
	// Requeue returns a PROCESSING item to PENDING for a later retry,
	// incrementing retry_count and deferring it until nextAttempt.
	Requeue(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt, at time.Time) error
	// CancelActiveForBatch cancels all PENDING and PROCESSING items of a
	// batch, returning how many rows changed.
	CancelActiveForBatch(ctx context.Context, batchID uuid.UUID, at time.Time) (int64, error)
	CountByStatusForBatch(ctx context.Context, batchID uuid.UUID) (domain.BatchCounts, error)
	// CountSentSince counts items of the organization that reached SENT on or
	// after the cutoff, across both channels. Backs the rate limiter.
	CountSentSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)
	RecentFailures(ctx context.Context, batchID uuid.UUID, limit int) ([]*domain.FailureDetail, error)
	ListForBatch(ctx context.Context, batchID uuid.UUID, filter ItemFilter) ([]*domain.QueueItem, int, error)
}

// SkippedRecipientRepository reads skip records; they are written together
// with the batch and never mutated afterwards.
type SkippedRecipientRepository interface {
	ListForBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.SkippedRecipient, error)
}

// RecipientRepository reads recipient contact data.
type RecipientRepository interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Recipient, error)
	GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*domain.Recipient, error)
}

// OrganizationRepository reads organization records.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}

// TemplateRepository reads message templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.MessageTemplate, error)
}
