package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// StatsAggregator recomputes batch-level counters and closes out terminal
// batch states after processing cycles.
type StatsAggregator struct {
	items     repository.QueueItemRepository
	batches   repository.BatchStore
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatsAggregator creates a StatsAggregator.
func NewStatsAggregator(
	items repository.QueueItemRepository,
	batches repository.BatchStore,
	publisher EventPublisher,
	logger *slog.Logger,
) *StatsAggregator {
	return &StatsAggregator{
		items:     items,
		batches:   batches,
		publisher: publisher,
		logger:    logger.With("component", "stats_aggregator"),
		now:       time.Now,
	}
}

// RefreshBatch recomputes per-status item counts and writes them back onto
// the batch. When no items remain PENDING or PROCESSING the batch transitions
// to COMPLETED (no failures) or COMPLETED_WITH_ERRORS, stamping completed_at.
// Batches already in a terminal status are never resurrected.
func (a *StatsAggregator) RefreshBatch(ctx context.Context, batchID uuid.UUID) error {
	counts, err := a.items.CountByStatusForBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("count items for batch %s: %w", batchID, err)
	}

	status := domain.BatchStatusProcessing
	var completedAt *time.Time
	if counts.Pending == 0 && counts.Processing == 0 {
		if counts.Failed > 0 {
			status = domain.BatchStatusCompletedWithErrors
		} else {
			status = domain.BatchStatusCompleted
		}
		now := a.now().UTC()
		completedAt = &now
	}

	updated, err := a.batches.UpdateStats(ctx, batchID, counts, status, completedAt)
	if err != nil {
		return fmt.Errorf("update stats for batch %s: %w", batchID, err)
	}
	if !updated {
		a.logger.DebugContext(ctx, "Batch already terminal; stats refresh skipped", "batch_id", batchID)
		return nil
	}

	a.logger.InfoContext(ctx, "Batch statistics refreshed",
		"batch_id", batchID, "status", status,
		"sent", counts.Sent, "failed", counts.Failed,
		"pending", counts.Pending, "processing", counts.Processing)

	if status.Terminal() {
		batch, err := a.batches.GetByID(ctx, batchID)
		if err != nil {
			a.logger.WarnContext(ctx, "Could not load batch for completion event", "error", err, "batch_id", batchID)
			return nil
		}
		publishBatchEvent(ctx, a.publisher, a.logger, SubjectBatchCompleted, batch)
	}
	return nil
}
