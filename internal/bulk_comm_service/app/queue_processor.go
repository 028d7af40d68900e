package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/adapters/provider"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// backoffSchedule is the fixed retry delay sequence, indexed by the item's
// retry count at the time of the failure.
var backoffSchedule = []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}

func backoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[retryCount]
}

// RateGate is the rate limiter surface the processor depends on.
type RateGate interface {
	CanProceed(ctx context.Context, orgID uuid.UUID) (bool, error)
}

// ProcessorConfig configures the queue processor.
type ProcessorConfig struct {
	MaxRetries  int
	SendDelay   time.Duration // fixed pause between successive sends in one cycle
	SendTimeout time.Duration // per-item provider call timeout
}

// ProcessResult summarizes one processing cycle. Processed counts items that
// reached SENT; Failed counts items that reached FAILED. Requeued retries are
// counted in neither.
type ProcessResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type itemOutcome int

const (
	outcomeSent itemOutcome = iota
	outcomeRetried
	outcomeFailed
)

// QueueProcessor claims due queue items, enforces the rate limiter, invokes
// the channel provider and applies the retry/backoff policy. It is invoked
// periodically by a scheduler; multiple invocations may run concurrently
// across worker processes, coordinated by the skip-if-locked claim.
type QueueProcessor struct {
	items    repository.QueueItemRepository
	batches  repository.BatchStore
	limiter  RateGate
	provider provider.ChannelProvider
	stats    *StatsAggregator
	pacer    *rate.Limiter
	cfg      ProcessorConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueueProcessor creates a QueueProcessor.
func NewQueueProcessor(
	items repository.QueueItemRepository,
	batches repository.BatchStore,
	limiter RateGate,
	channelProvider provider.ChannelProvider,
	stats *StatsAggregator,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *QueueProcessor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = 200 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &QueueProcessor{
		items:    items,
		batches:  batches,
		limiter:  limiter,
		provider: channelProvider,
		stats:    stats,
		pacer:    rate.NewLimiter(rate.Every(cfg.SendDelay), 1),
		cfg:      cfg,
		logger:   logger.With("component", "queue_processor"),
		now:      time.Now,
	}
}

// ProcessQueue runs one processing cycle over at most batchSize items.
// Organizations that have met their send caps are deferred untouched; the
// cycle is retried by a later invocation, which is not an error. One item's
// failure never aborts the cycle or affects sibling items.
func (p *QueueProcessor) ProcessQueue(ctx context.Context, batchSize int) (ProcessResult, error) {
	timer := prometheus.NewTimer(cycleDurationHist)
	defer timer.ObserveDuration()

	var result ProcessResult
	if batchSize <= 0 {
		return result, nil
	}

	orgs, err := p.items.DueOrganizations(ctx, p.cfg.MaxRetries, p.now().UTC())
	if err != nil {
		return result, fmt.Errorf("list due organizations: %w", err)
	}
	if len(orgs) == 0 {
		return result, nil
	}

	remaining := batchSize
	touched := make(map[uuid.UUID]struct{})

	for _, orgID := range orgs {
		if remaining <= 0 {
			break
		}

		allowed, err := p.limiter.CanProceed(ctx, orgID)
		if err != nil {
			p.logger.ErrorContext(ctx, "Rate limiter check failed", "error", err, "org_id", orgID)
			continue
		}
		if !allowed {
			rateLimitDeferralsCounter.Inc()
			p.logger.InfoContext(ctx, "Send caps reached; deferring organization", "org_id", orgID)
			continue
		}

		items, err := p.items.ClaimDueForOrg(ctx, orgID, remaining, p.cfg.MaxRetries, p.now().UTC())
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to claim due items", "error", err, "org_id", orgID)
			continue
		}
		if len(items) == 0 {
			continue
		}
		remaining -= len(items)

		batchIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			if _, seen := touched[item.BatchID]; !seen {
				touched[item.BatchID] = struct{}{}
				batchIDs = append(batchIDs, item.BatchID)
			}
		}
		if err := p.batches.MarkProcessing(ctx, batchIDs, p.now().UTC()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark batches processing", "error", err, "batch_ids", batchIDs)
		}

		p.logger.InfoContext(ctx, "Claimed queue items", "org_id", orgID, "count", len(items))

		for _, item := range items {
			switch p.processItem(ctx, item) {
			case outcomeSent:
				result.Processed++
			case outcomeFailed:
				result.Failed++
			}
		}
	}

	for batchID := range touched {
		if err := p.stats.RefreshBatch(ctx, batchID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to refresh batch statistics", "error", err, "batch_id", batchID)
		}
	}

	return result, nil
}

// processItem sends one claimed item and applies the retry/backoff policy.
// Any error, including a panic, is contained and converts the item to FAILED
// at worst; processing continues with the next item.
func (p *QueueProcessor) processItem(ctx context.Context, item *domain.QueueItem) (outcome itemOutcome) {
	logger := p.logger.With("item_id", item.ID, "batch_id", item.BatchID, "channel", item.Channel)

	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeFailed
			msg := fmt.Sprintf("internal error: %v", r)
			logger.ErrorContext(ctx, "Panic while processing item", "panic", r)
			if err := p.items.MarkFailed(ctx, item.ID, msg, p.now().UTC()); err != nil {
				logger.ErrorContext(ctx, "Failed to mark item failed after panic", "error", err)
			}
			itemsProcessedCounter.WithLabelValues(string(item.Channel), "failed").Inc()
		}
	}()

	// Smooth outbound throughput between successive sends within one cycle.
	if err := p.pacer.Wait(ctx); err != nil {
		logger.WarnContext(ctx, "Send pacing interrupted", "error", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	sendTimer := prometheus.NewTimer(providerSendDurationHist.WithLabelValues(string(item.Channel)))
	var sendResult *provider.SendResult
	var err error
	switch item.Channel {
	case domain.ChannelSMS:
		sendResult, err = p.provider.SendSMS(sendCtx, item.OrgID, provider.SMSRequest{
			RecipientID: item.RecipientID,
			Phone:       item.Address,
			Content:     item.Body,
		})
	case domain.ChannelEmail:
		subject := ""
		if item.Subject != nil {
			subject = *item.Subject
		}
		sendResult, err = p.provider.SendEmail(sendCtx, item.OrgID, provider.EmailRequest{
			RecipientID: item.RecipientID,
			Email:       item.Address,
			Subject:     subject,
			Content:     item.Body,
		})
	default:
		err = domain.NewSendError(domain.SendErrPermanent, "unknown channel %q", item.Channel)
	}
	sendTimer.ObserveDuration()

	now := p.now().UTC()
	if err == nil {
		if err := p.items.MarkSent(ctx, item.ID, sendResult.ExternalID, now); err != nil {
			// The message left the building either way; at-least-once delivery
			// means a cancelled-in-flight item stays cancelled.
			logger.WarnContext(ctx, "Failed to finalize item as sent", "error", err)
		}
		itemsProcessedCounter.WithLabelValues(string(item.Channel), "sent").Inc()
		logger.InfoContext(ctx, "Item sent", "external_id", sendResult.ExternalID)
		return outcomeSent
	}

	sendErr := domain.AsSendError(err)
	if sendErr.Transient() && item.RetryCount < p.cfg.MaxRetries-1 {
		nextAttempt := now.Add(backoffDelay(item.RetryCount))
		if err := p.items.Requeue(ctx, item.ID, sendErr.Error(), nextAttempt, now); err != nil {
			logger.ErrorContext(ctx, "Failed to requeue item for retry", "error", err)
		}
		itemsProcessedCounter.WithLabelValues(string(item.Channel), "retried").Inc()
		logger.WarnContext(ctx, "Item deferred for retry",
			"error", sendErr, "retry_count", item.RetryCount+1, "next_attempt", nextAttempt)
		return outcomeRetried
	}

	if err := p.items.MarkFailed(ctx, item.ID, sendErr.Error(), now); err != nil {
		logger.ErrorContext(ctx, "Failed to mark item failed", "error", err)
	}
	itemsProcessedCounter.WithLabelValues(string(item.Channel), "failed").Inc()
	logger.ErrorContext(ctx, "Item failed permanently", "error", sendErr, "retry_count", item.RetryCount)
	return outcomeFailed
}
