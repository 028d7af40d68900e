package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// Skip reasons recorded for disqualified recipients.
const (
	SkipReasonNotFound    = "recipient not found"
	SkipReasonNoPhone     = "no phone number on record"
	SkipReasonNoEmail     = "no email address on record"
	SkipReasonSMSOptOut   = "opted out of SMS messages"
	SkipReasonEmailOptOut = "opted out of email messages"
)

// QueueBulkRequest is the input to QueueBulkCommunications. Either TemplateID
// or Content must be supplied; custom Subject/Content override the template.
type QueueBulkRequest struct {
	OrgID        uuid.UUID
	RecipientIDs []uuid.UUID
	Channel      domain.Channel
	TemplateID   *uuid.UUID
	Subject      *string
	Content      *string
	Priority     domain.Priority
	ScheduledAt  *time.Time
	CreatedBy    uuid.UUID
}

// SkippedInfo describes one recipient excluded at enqueue time.
type SkippedInfo struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason"`
}

// QueueBulkResult is the outcome of queueing a bulk communication.
type QueueBulkResult struct {
	BatchID     uuid.UUID          `json:"batch_id"`
	Status      domain.BatchStatus `json:"status"`
	QueuedCount int                `json:"queued_count"`
	Skipped     []SkippedInfo      `json:"skipped"`
}

// BatchManagerConfig configures batch creation.
type BatchManagerConfig struct {
	DefaultPriority domain.Priority
}

// BatchManager validates a recipient list, personalizes content up front and
// creates the batch plus its queue items atomically.
type BatchManager struct {
	batches      repository.BatchStore
	recipients   repository.RecipientRepository
	orgs         repository.OrganizationRepository
	templates    repository.TemplateRepository
	personalizer *Personalizer
	publisher    EventPublisher
	cfg          BatchManagerConfig
	logger       *slog.Logger
	now          func() time.Time
}

// NewBatchManager creates a BatchManager.
func NewBatchManager(
	batches repository.BatchStore,
	recipients repository.RecipientRepository,
	orgs repository.OrganizationRepository,
	templates repository.TemplateRepository,
	personalizer *Personalizer,
	publisher EventPublisher,
	cfg BatchManagerConfig,
	logger *slog.Logger,
) *BatchManager {
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = domain.PriorityNormal
	}
	return &BatchManager{
		batches:      batches,
		recipients:   recipients,
		orgs:         orgs,
		templates:    templates,
		personalizer: personalizer,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger.With("component", "batch_manager"),
		now:          time.Now,
	}
}

// QueueBulkCommunications creates a batch and one personalized queue item per
// qualifying recipient. Disqualified recipients become skip records, never
// queue items. Content is frozen at enqueue time: later template edits do not
// affect already-queued items.
func (m *BatchManager) QueueBulkCommunications(ctx context.Context, req QueueBulkRequest) (*QueueBulkResult, error) {
	if !req.Channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}
	if len(req.RecipientIDs) == 0 {
		return nil, domain.ErrNoRecipients
	}

	org, err := m.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	subject, content, err := m.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	recipients, err := m.recipients.GetByIDs(ctx, req.OrgID, req.RecipientIDs)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	byID := make(map[uuid.UUID]*domain.Recipient, len(recipients))
	for _, r := range recipients {
		byID[r.ID] = r
	}

	now := m.now().UTC()
	priority := req.Priority
	if priority == "" {
		priority = m.cfg.DefaultPriority
	}

	batchID := uuid.New()
	var items []*domain.QueueItem
	var skipRecords []*domain.SkippedRecipient
	var skippedInfos []SkippedInfo

	skip := func(recipientID uuid.UUID, name, reason string) {
		skipRecords = append(skipRecords, &domain.SkippedRecipient{
			ID:          uuid.New(),
			BatchID:     batchID,
			RecipientID: recipientID,
			Name:        name,
			Reason:      reason,
			CreatedAt:   now,
		})
		skippedInfos = append(skippedInfos, SkippedInfo{RecipientID: recipientID, Name: name, Reason: reason})
	}

	for _, id := range req.RecipientIDs {
		rec, ok := byID[id]
		if !ok {
			skip(id, "", SkipReasonNotFound)
			continue
		}

		address := rec.AddressFor(req.Channel)
		if address == "" {
			if req.Channel == domain.ChannelSMS {
				skip(id, rec.FullName(), SkipReasonNoPhone)
			} else {
				skip(id, rec.FullName(), SkipReasonNoEmail)
			}
			continue
		}
		if !rec.ConsentsTo(req.Channel) {
			if req.Channel == domain.ChannelSMS {
				skip(id, rec.FullName(), SkipReasonSMSOptOut)
			} else {
				skip(id, rec.FullName(), SkipReasonEmailOptOut)
			}
			continue
		}

		body, warnings := m.personalizer.Personalize(content, rec, org)
		if len(warnings) > 0 {
			m.logger.WarnContext(ctx, "Personalization warnings while enqueueing", "batch_id", batchID, "recipient_id", id, "warnings", warnings)
		}

		var itemSubject *string
		if req.Channel == domain.ChannelEmail && subject != "" {
			personalized, _ := m.personalizer.Personalize(subject, rec, org)
			itemSubject = &personalized
		}

		items = append(items, &domain.QueueItem{
			ID:          uuid.New(),
			BatchID:     batchID,
			OrgID:       req.OrgID,
			RecipientID: id,
			Channel:     req.Channel,
			Address:     address,
			Subject:     itemSubject,
			Body:        body,
			Status:      domain.ItemStatusPending,
			ScheduledAt: req.ScheduledAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	status := domain.BatchStatusPending
	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		status = domain.BatchStatusScheduled
	}
	batch := &domain.Batch{
		ID:           batchID,
		OrgID:        req.OrgID,
		Channel:      req.Channel,
		Status:       status,
		Priority:     priority,
		TotalCount:   len(items),
		PendingCount: len(items),
		Subject:      req.Subject,
		Content:      &content,
		TemplateID:   req.TemplateID,
		ScheduledAt:  req.ScheduledAt,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if len(items) == 0 {
		// Nothing to process; close the batch out immediately.
		batch.Status = domain.BatchStatusCompleted
		batch.CompletedAt = &now
	}

	if err := m.batches.CreateWithItems(ctx, batch, items, skipRecords); err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	batchesCreatedCounter.WithLabelValues(string(req.Channel)).Inc()
	m.logger.InfoContext(ctx, "Bulk communication queued",
		"batch_id", batchID, "org_id", req.OrgID, "channel", req.Channel,
		"queued", len(items), "skipped", len(skipRecords), "status", batch.Status)

	publishBatchEvent(ctx, m.publisher, m.logger, SubjectBatchCreated, batch)

	return &QueueBulkResult{
		BatchID:     batchID,
		Status:      batch.Status,
		QueuedCount: len(items),
		Skipped:     skippedInfos,
	}, nil
}

func (m *BatchManager) resolveContent(ctx context.Context, req QueueBulkRequest) (subject, content string, err error) {
	if req.TemplateID != nil {
		tpl, err := m.templates.GetByID(ctx, req.OrgID, *req.TemplateID)
		if err != nil {
			return "", "", fmt.Errorf("load template: %w", err)
		}
		content = tpl.Content
		if tpl.Subject != nil {
			subject = *tpl.Subject
		}
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) != "" {
		content = *req.Content
	}
	if req.Subject != nil && strings.TrimSpace(*req.Subject) != "" {
		subject = *req.Subject
	}
	if strings.TrimSpace(content) == "" {
		return "", "", domain.ErrEmptyContent
	}
	return subject, content, nil
}
