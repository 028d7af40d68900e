package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

const smsSegmentSize = 160

// recentFailureLimit bounds the failure detail returned by GetStatus.
const recentFailureLimit = 10

// LifecycleConfig carries the per-minute throughput used for completion
// estimates.
type LifecycleConfig struct {
	SMSPerMinuteLimit   int
	EmailPerMinuteLimit int
}

// BatchStatusReport is the full status view of one batch.
type BatchStatusReport struct {
	Batch                 *domain.Batch              `json:"batch"`
	Breakdown             domain.BatchCounts         `json:"breakdown"`
	Skipped               []*domain.SkippedRecipient `json:"skipped"`
	RecentFailures        []*domain.FailureDetail    `json:"recent_failures"`
	ProgressPercent       float64                    `json:"progress_percent"`
	EstimatedCompletionAt *time.Time                 `json:"estimated_completion_at,omitempty"`
}

// PreviewResult is a personalized message preview without enqueueing.
type PreviewResult struct {
	Text      string   `json:"text"`
	CharCount int      `json:"char_count"`
	Segments  int      `json:"segments"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Lifecycle provides batch status inspection, cancellation and message
// preview on top of the other components.
type Lifecycle struct {
	batches      repository.BatchStore
	items        repository.QueueItemRepository
	skipped      repository.SkippedRecipientRepository
	recipients   repository.RecipientRepository
	orgs         repository.OrganizationRepository
	personalizer *Personalizer
	publisher    EventPublisher
	cfg          LifecycleConfig
	logger       *slog.Logger
	now          func() time.Time
}

// NewLifecycle creates the lifecycle operations facade.
func NewLifecycle(
	batches repository.BatchStore,
	items repository.QueueItemRepository,
	skipped repository.SkippedRecipientRepository,
	recipients repository.RecipientRepository,
	orgs repository.OrganizationRepository,
	personalizer *Personalizer,
	publisher EventPublisher,
	cfg LifecycleConfig,
	logger *slog.Logger,
) *Lifecycle {
	return &Lifecycle{
		batches:      batches,
		items:        items,
		skipped:      skipped,
		recipients:   recipients,
		orgs:         orgs,
		personalizer: personalizer,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger.With("component", "lifecycle"),
		now:          time.Now,
	}
}

// GetStatus returns batch metadata, the per-status breakdown, the skip list,
// recent failures, a progress percentage and an estimated completion time.
func (l *Lifecycle) GetStatus(ctx context.Context, batchID uuid.UUID) (*BatchStatusReport, error) {
	batch, err := l.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	counts, err := l.items.CountByStatusForBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	skipped, err := l.skipped.ListForBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list skipped recipients: %w", err)
	}
	failures, err := l.items.RecentFailures(ctx, batchID, recentFailureLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent failures: %w", err)
	}

	progress := 100.0
	if batch.TotalCount > 0 {
		progress = float64(counts.Sent+counts.Failed) / float64(batch.TotalCount) * 100
	}

	var eta *time.Time
	if !batch.Status.Terminal() && counts.Pending > 0 {
		perMinute := l.cfg.SMSPerMinuteLimit
		if batch.Channel == domain.ChannelEmail {
			perMinute = l.cfg.EmailPerMinuteLimit
		}
		if perMinute > 0 {
			minutes := (counts.Pending + perMinute - 1) / perMinute
			t := l.now().UTC().Add(time.Duration(minutes) * time.Minute)
			eta = &t
		}
	}

	return &BatchStatusReport{
		Batch:                 batch,
		Breakdown:             counts,
		Skipped:               skipped,
		RecentFailures:        failures,
		ProgressPercent:       progress,
		EstimatedCompletionAt: eta,
	}, nil
}

// Cancel cancels a non-terminal batch: every PENDING and PROCESSING item is
// transitioned to CANCELLED, already-SENT and already-FAILED items are left
// untouched. Cancellation is cooperative; an in-flight send is not
// interrupted.
func (l *Lifecycle) Cancel(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	batch, err := l.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, domain.ErrInvalidBatchState
	}

	cancelled, err := l.items.CancelActiveForBatch(ctx, batchID, l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cancel batch items: %w", err)
	}
	if err := l.batches.Cancel(ctx, batchID, l.now().UTC()); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Batch cancelled", "batch_id", batchID, "items_cancelled", cancelled)

	batch, err = l.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	publishBatchEvent(ctx, l.publisher, l.logger, SubjectBatchCancelled, batch)
	return batch, nil
}

// Preview personalizes content for one recipient without enqueueing anything.
// For SMS the segment estimate assumes 160 characters per message part.
func (l *Lifecycle) Preview(ctx context.Context, orgID, recipientID uuid.UUID, channel domain.Channel, content string) (*PreviewResult, error) {
	if !channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	recipient, err := l.recipients.GetByID(ctx, orgID, recipientID)
	if err != nil {
		return nil, err
	}
	org, err := l.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	text, warnings := l.personalizer.Personalize(content, recipient, org)
	charCount := utf8.RuneCountInString(text)

	segments := 1
	if channel == domain.ChannelSMS {
		segments = smsSegments(charCount)
	}

	return &PreviewResult{
		Text:      text,
		CharCount: charCount,
		Segments:  segments,
		Warnings:  warnings,
	}, nil
}

func smsSegments(charCount int) int {
	if charCount == 0 {
		return 0
	}
	return (charCount + smsSegmentSize - 1) / smsSegmentSize
}

// ListBatches lists batches matching the filter.
func (l *Lifecycle) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]*domain.Batch, int, error) {
	return l.batches.List(ctx, filter)
}

// ListItems lists a batch's queue items matching the filter.
func (l *Lifecycle) ListItems(ctx context.Context, batchID uuid.UUID, filter repository.ItemFilter) ([]*domain.QueueItem, int, error) {
	if _, err := l.batches.GetByID(ctx, batchID); err != nil {
		return nil, 0, err
	}
	return l.items.ListForBatch(ctx, batchID, filter)
}

// AvailableVariables returns the supported personalization variable names.
func (l *Lifecycle) AvailableVariables() []string {
	vars := AllVariables()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	return names
}
