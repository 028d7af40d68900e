package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
)

type statsTestComponents struct {
	stats     *StatsAggregator
	items     *MockQueueItemRepository
	batches   *MockBatchStore
	publisher *MockEventPublisher
	now       time.Time
}

func setupStatsTest(t *testing.T) statsTestComponents {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	items := new(MockQueueItemRepository)
	batches := new(MockBatchStore)
	publisher := new(MockEventPublisher)
	stats := NewStatsAggregator(items, batches, publisher, logger)
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	stats.now = func() time.Time { return now }
	return statsTestComponents{stats: stats, items: items, batches: batches, publisher: publisher, now: now}
}

func TestStatsAggregator_RefreshBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("StillActiveStaysProcessing", func(t *testing.T) {
		c := setupStatsTest(t)
		batchID := uuid.New()
		counts := domain.BatchCounts{Sent: 3, Failed: 1, Pending: 5, Processing: 1}
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		c.batches.On("UpdateStats", ctx, batchID, counts, domain.BatchStatusProcessing, (*time.Time)(nil)).
			Return(true, nil)

		require.NoError(t, c.stats.RefreshBatch(ctx, batchID))
		c.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AllSentCompletes", func(t *testing.T) {
		c := setupStatsTest(t)
		batchID := uuid.New()
		counts := domain.BatchCounts{Sent: 10}
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		c.batches.On("UpdateStats", ctx, batchID, counts, domain.BatchStatusCompleted, &c.now).
			Return(true, nil)
		batch := &domain.Batch{ID: batchID, OrgID: uuid.New(), Channel: domain.ChannelSMS,
			Status: domain.BatchStatusCompleted, TotalCount: 10}
		c.batches.On("GetByID", ctx, batchID).Return(batch, nil)

		var payload []byte
		c.publisher.On("Publish", ctx, SubjectBatchCompleted, mock.Anything).
			Run(func(args mock.Arguments) { payload = args.Get(2).([]byte) }).
			Return(nil)

		require.NoError(t, c.stats.RefreshBatch(ctx, batchID))

		var event BatchEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, batchID, event.BatchID)
		assert.Equal(t, domain.BatchStatusCompleted, event.Status)
	})

	t.Run("FailuresCompleteWithErrors", func(t *testing.T) {
		c := setupStatsTest(t)
		batchID := uuid.New()
		counts := domain.BatchCounts{Sent: 8, Failed: 2}
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		c.batches.On("UpdateStats", ctx, batchID, counts, domain.BatchStatusCompletedWithErrors, &c.now).
			Return(true, nil)
		c.batches.On("GetByID", ctx, batchID).
			Return(&domain.Batch{ID: batchID, Status: domain.BatchStatusCompletedWithErrors}, nil)
		c.publisher.On("Publish", ctx, SubjectBatchCompleted, mock.Anything).Return(nil)

		require.NoError(t, c.stats.RefreshBatch(ctx, batchID))
		c.publisher.AssertExpectations(t)
	})

	t.Run("CancelledItemsAloneStillComplete", func(t *testing.T) {
		// A fully cancelled batch has no pending or processing items and no
		// failures; the guarded update leaves its CANCELLED status alone.
		c := setupStatsTest(t)
		batchID := uuid.New()
		counts := domain.BatchCounts{Sent: 2, Cancelled: 8}
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		c.batches.On("UpdateStats", ctx, batchID, counts, domain.BatchStatusCompleted, &c.now).
			Return(false, nil)

		require.NoError(t, c.stats.RefreshBatch(ctx, batchID))
		c.batches.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		c.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TerminalBatchNotResurrected", func(t *testing.T) {
		c := setupStatsTest(t)
		batchID := uuid.New()
		counts := domain.BatchCounts{Sent: 5, Pending: 2}
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		// Guarded update touches no rows for an already-terminal batch.
		c.batches.On("UpdateStats", ctx, batchID, counts, domain.BatchStatusProcessing, (*time.Time)(nil)).
			Return(false, nil)

		require.NoError(t, c.stats.RefreshBatch(ctx, batchID))
		c.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})
}
