package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// RateLimiterConfig carries the per-channel caps. The limiter gates on the
// combined (SMS + email) totals per organization; it is a coarse
// organization-wide gate, not a per-channel token bucket.
type RateLimiterConfig struct {
	SMSHourlyLimit   int
	SMSDailyLimit    int
	EmailHourlyLimit int
	EmailDailyLimit  int
}

// RateLimiter decides whether a processing cycle may send for an
// organization. Counters are derived from persisted sent timestamps so the
// decision stays correct across concurrent worker processes.
type RateLimiter struct {
	items  repository.QueueItemRepository
	cfg    RateLimiterConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(items repository.QueueItemRepository, cfg RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		items:  items,
		cfg:    cfg,
		logger: logger.With("component", "rate_limiter"),
		now:    time.Now,
	}
}

// CanProceed reports whether the organization is under both its combined
// hourly and combined daily send caps.
func (l *RateLimiter) CanProceed(ctx context.Context, orgID uuid.UUID) (bool, error) {
	now := l.now().UTC()
	hourlyCap := l.cfg.SMSHourlyLimit + l.cfg.EmailHourlyLimit
	dailyCap := l.cfg.SMSDailyLimit + l.cfg.EmailDailyLimit

	hourCount, err := l.items.CountSentSince(ctx, orgID, now.Add(-time.Hour))
	if err != nil {
		return false, fmt.Errorf("count sent in trailing hour: %w", err)
	}
	if hourCount >= hourlyCap {
		l.logger.InfoContext(ctx, "Hourly send cap reached", "org_id", orgID, "count", hourCount, "cap", hourlyCap)
		return false, nil
	}

	dayCount, err := l.items.CountSentSince(ctx, orgID, now.Add(-24*time.Hour))
	if err != nil {
		return false, fmt.Errorf("count sent in trailing day: %w", err)
	}
	if dayCount >= dailyCap {
		l.logger.InfoContext(ctx, "Daily send cap reached", "org_id", orgID, "count", dayCount, "cap", dailyCap)
		return false, nil
	}

	return true, nil
}
