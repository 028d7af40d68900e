package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

type lifecycleTestComponents struct {
	lifecycle  *Lifecycle
	batches    *MockBatchStore
	items      *MockQueueItemRepository
	skipped    *MockSkippedRecipientRepository
	recipients *MockRecipientRepository
	orgs       *MockOrganizationRepository
	publisher  *MockEventPublisher
	now        time.Time
}

func setupLifecycleTest(t *testing.T) lifecycleTestComponents {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	batches := new(MockBatchStore)
	items := new(MockQueueItemRepository)
	skipped := new(MockSkippedRecipientRepository)
	recipients := new(MockRecipientRepository)
	orgs := new(MockOrganizationRepository)
	publisher := new(MockEventPublisher)

	lifecycle := NewLifecycle(
		batches, items, skipped, recipients, orgs,
		NewPersonalizer(logger), publisher,
		LifecycleConfig{SMSPerMinuteLimit: 30, EmailPerMinuteLimit: 60},
		logger,
	)
	now := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	lifecycle.now = func() time.Time { return now }

	return lifecycleTestComponents{
		lifecycle: lifecycle, batches: batches, items: items, skipped: skipped,
		recipients: recipients, orgs: orgs, publisher: publisher, now: now,
	}
}

func TestLifecycle_GetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("ActiveBatchReportsProgressAndETA", func(t *testing.T) {
		c := setupLifecycleTest(t)
		batchID := uuid.New()
		batch := &domain.Batch{
			ID: batchID, Channel: domain.ChannelSMS,
			Status: domain.BatchStatusProcessing, TotalCount: 100,
		}
		counts := domain.BatchCounts{Sent: 40, Failed: 10, Pending: 45, Processing: 5}
		failures := []*domain.FailureDetail{{RecipientID: uuid.New(), RecipientName: "Ana Reyes", Error: "network: unreachable"}}

		c.batches.On("GetByID", ctx, batchID).Return(batch, nil)
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(counts, nil)
		c.skipped.On("ListForBatch", ctx, batchID).Return([]*domain.SkippedRecipient{}, nil)
		c.items.On("RecentFailures", ctx, batchID, 10).Return(failures, nil)

		report, err := c.lifecycle.GetStatus(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, batch, report.Batch)
		assert.Equal(t, counts, report.Breakdown)
		assert.InDelta(t, 50.0, report.ProgressPercent, 0.001)
		// 45 pending at 30 SMS per minute: ceil to 2 minutes.
		require.NotNil(t, report.EstimatedCompletionAt)
		assert.Equal(t, c.now.Add(2*time.Minute), *report.EstimatedCompletionAt)
		assert.Equal(t, failures, report.RecentFailures)
	})

	t.Run("TerminalBatchHasNoETA", func(t *testing.T) {
		c := setupLifecycleTest(t)
		batchID := uuid.New()
		batch := &domain.Batch{ID: batchID, Status: domain.BatchStatusCompleted, TotalCount: 10}

		c.batches.On("GetByID", ctx, batchID).Return(batch, nil)
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(domain.BatchCounts{Sent: 10}, nil)
		c.skipped.On("ListForBatch", ctx, batchID).Return([]*domain.SkippedRecipient{}, nil)
		c.items.On("RecentFailures", ctx, batchID, 10).Return([]*domain.FailureDetail{}, nil)

		report, err := c.lifecycle.GetStatus(ctx, batchID)
		require.NoError(t, err)
		assert.Nil(t, report.EstimatedCompletionAt)
		assert.InDelta(t, 100.0, report.ProgressPercent, 0.001)
	})

	t.Run("EmptyBatchIsFullProgress", func(t *testing.T) {
		c := setupLifecycleTest(t)
		batchID := uuid.New()
		batch := &domain.Batch{ID: batchID, Status: domain.BatchStatusCompleted, TotalCount: 0}

		c.batches.On("GetByID", ctx, batchID).Return(batch, nil)
		c.items.On("CountByStatusForBatch", ctx, batchID).Return(domain.BatchCounts{}, nil)
		c.skipped.On("ListForBatch", ctx, batchID).Return([]*domain.SkippedRecipient{}, nil)
		c.items.On("RecentFailures", ctx, batchID, 10).Return([]*domain.FailureDetail{}, nil)

		report, err := c.lifecycle.GetStatus(ctx, batchID)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, report.ProgressPercent, 0.001)
	})

	t.Run("UnknownBatch", func(t *testing.T) {
		c := setupLifecycleTest(t)
		batchID := uuid.New()
		c.batches.On("GetByID", ctx, batchID).Return(nil, domain.ErrBatchNotFound)

		_, err := c.lifecycle.GetStatus(ctx, batchID)
		assert.ErrorIs(t, err, domain.ErrBatchNotFound)
	})
}

func TestLifecycle_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsActiveItemsAndPublishes", func(t *testing.T) {
		c := setupLifecycleTest(t)
		batchID := uuid.New()
		active := &domain.Batch{ID: batchID, Status: domain.BatchStatusProcessing, TotalCount: 20}
		cancelled := &domain.Batch{ID: batchID, Status: domain.BatchStatusCancelled, TotalCount: 20}

		c.batches.On("GetByID", ctx, batchID).Return(active, nil).Once()
		c.items.On("CancelActiveForBatch", ctx, batchID, c.now).Return(int64(12), nil)
		c.batches.On("Cancel", ctx, batchID, c.now).Return(nil)
		c.batches.On("GetByID", ctx, batchID).Return(cancelled, nil).Once()
		c.publisher.On("Publish", ctx, SubjectBatchCancelled, mock.Anything).Return(nil)

		batch, err := c.lifecycle.Cancel(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusCancelled, batch.Status)
		c.items.AssertExpectations(t)
		c.publisher.AssertExpectations(t)
	})

	t.Run("TerminalBatchRejected", func(t *testing.T) {
		for _, status := range []domain.BatchStatus{
			domain.BatchStatusCompleted,
			domain.BatchStatusCompletedWithErrors,
			domain.BatchStatusCancelled,
		} {
			c := setupLifecycleTest(t)
			batchID := uuid.New()
			c.batches.On("GetByID", ctx, batchID).Return(&domain.Batch{ID: batchID, Status: status}, nil)

			_, err := c.lifecycle.Cancel(ctx, batchID)
			assert.ErrorIs(t, err, domain.ErrInvalidBatchState, "status %s", status)
			c.items.AssertNotCalled(t, "CancelActiveForBatch", mock.Anything, mock.Anything, mock.Anything)
		}
	})
}

func TestLifecycle_Preview(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	recipientID := uuid.New()
	org := &domain.Organization{ID: orgID, Name: "Riverside Clinic", Locale: "en-US"}
	recipient := &domain.Recipient{ID: recipientID, OrgID: orgID, FirstName: "Maria", LastName: "Santos"}

	t.Run("PersonalizesAndCounts", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(recipient, nil)
		c.orgs.On("GetByID", ctx, orgID).Return(org, nil)

		preview, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, "Hi {{first_name}}!")
		require.NoError(t, err)
		assert.Equal(t, "Hi Maria!", preview.Text)
		assert.Equal(t, 9, preview.CharCount)
		assert.Equal(t, 1, preview.Segments)
		assert.Empty(t, preview.Warnings)
	})

	t.Run("SMSSegmentBoundaries", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(recipient, nil)
		c.orgs.On("GetByID", ctx, orgID).Return(org, nil)

		cases := []struct {
			length int
			want   int
		}{
			{159, 1},
			{160, 1},
			{161, 2},
			{320, 2},
			{321, 3},
		}
		for _, tc := range cases {
			preview, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, strings.Repeat("x", tc.length))
			require.NoError(t, err)
			assert.Equal(t, tc.want, preview.Segments, "length %d", tc.length)
		}
	})

	t.Run("EmailIsAlwaysOneSegment", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(recipient, nil)
		c.orgs.On("GetByID", ctx, orgID).Return(org, nil)

		preview, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelEmail, strings.Repeat("y", 500))
		require.NoError(t, err)
		assert.Equal(t, 1, preview.Segments)
	})

	t.Run("CharCountIsRunes", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(recipient, nil)
		c.orgs.On("GetByID", ctx, orgID).Return(org, nil)

		preview, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, "héllo wörld")
		require.NoError(t, err)
		assert.Equal(t, 11, preview.CharCount)
	})

	t.Run("MissingValueWarns", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(recipient, nil)
		c.orgs.On("GetByID", ctx, orgID).Return(org, nil)

		preview, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, "Call {{phone}}")
		require.NoError(t, err)
		assert.Equal(t, "Call ", preview.Text)
		require.Len(t, preview.Warnings, 1)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		c := setupLifecycleTest(t)
		_, err := c.lifecycle.Preview(ctx, orgID, recipientID, "FAX", "hello")
		assert.ErrorIs(t, err, domain.ErrInvalidChannel)

		_, err = c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, "   ")
		assert.ErrorIs(t, err, domain.ErrEmptyContent)
	})

	t.Run("UnknownRecipient", func(t *testing.T) {
		c := setupLifecycleTest(t)
		c.recipients.On("GetByID", ctx, orgID, recipientID).Return(nil, domain.ErrRecipientNotFound)

		_, err := c.lifecycle.Preview(ctx, orgID, recipientID, domain.ChannelSMS, "hello")
		assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
	})
}

func TestLifecycle_ListItems_UnknownBatch(t *testing.T) {
	c := setupLifecycleTest(t)
	ctx := context.Background()
	batchID := uuid.New()
	c.batches.On("GetByID", ctx, batchID).Return(nil, domain.ErrBatchNotFound)

	_, _, err := c.lifecycle.ListItems(ctx, batchID, repository.ItemFilter{})
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
	c.items.AssertNotCalled(t, "ListForBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestLifecycle_AvailableVariables(t *testing.T) {
	c := setupLifecycleTest(t)
	vars := c.lifecycle.AvailableVariables()
	assert.Len(t, vars, len(AllVariables()))
	assert.Contains(t, vars, "first_name")
	assert.Contains(t, vars, "organization_name")
	assert.Contains(t, vars, "current_year")
}
