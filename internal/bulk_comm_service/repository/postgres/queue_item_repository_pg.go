package postgres

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

const itemColumns = `id, batch_id, org_id, recipient_id, channel, address, subject, body, status,
       retry_count, last_error, scheduled_at, sent_at, failed_at, cancelled_at,
       provider_message_id, created_at, updated_at`

type pgQueueItemRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPgQueueItemRepository creates the PostgreSQL queue item repository.
func NewPgQueueItemRepository(db DBPool, logger *slog.Logger) repository.QueueItemRepository {
	return &pgQueueItemRepository{db: db, logger: logger}
}

// ClaimDueForOrg selects due PENDING items with FOR UPDATE SKIP LOCKED and
// moves them to PROCESSING in one statement. Items of terminal batches are
// never claimed. Ordering by batch priority then item age is advisory; the
// UPDATE..RETURNING does not guarantee row order across concurrent workers.
func (r *pgQueueItemRepository) ClaimDueForOrg(ctx context.Context, orgID uuid.UUID, limit, maxRetries int, now time.Time) ([]*domain.QueueItem, error) {
	query := `
		WITH due AS (
			SELECT i.id
			FROM comm_queue_items i
			JOIN comm_batches b ON b.id = i.batch_id
			WHERE i.org_id = $1
			  AND i.status = $2
			  AND (i.scheduled_at IS NULL OR i.scheduled_at <= $3)
			  AND i.retry_count < $4
			  AND b.status NOT IN ($5, $6, $7)
			ORDER BY CASE b.priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, i.created_at ASC
			LIMIT $8
			FOR UPDATE OF i SKIP LOCKED
		)
		UPDATE comm_queue_items qi
		SET status = $9, updated_at = $3
		FROM due
		WHERE qi.id = due.id
		RETURNING ` + prefixedItemColumns("qi")

	rows, err := r.db.Query(ctx, query,
		orgID, domain.ItemStatusPending, now, maxRetries,
		domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors, domain.BatchStatusCancelled,
		limit, domain.ItemStatusProcessing,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming due queue items", "error", err, "org_id", orgID)
		return nil, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		item := &domain.QueueItem{}
		if err := scanItem(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *pgQueueItemRepository) DueOrganizations(ctx context.Context, maxRetries int, now time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT i.org_id
		FROM comm_queue_items i
		JOIN comm_batches b ON b.id = i.batch_id
		WHERE i.status = $1
		  AND (i.scheduled_at IS NULL OR i.scheduled_at <= $2)
		  AND i.retry_count < $3
		  AND b.status NOT IN ($4, $5, $6)
	`
	rows, err := r.db.Query(ctx, query,
		domain.ItemStatusPending, now, maxRetries,
		domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors, domain.BatchStatusCancelled,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing due organizations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}

func (r *pgQueueItemRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) error {
	query := `
		UPDATE comm_queue_items
		SET status = $2, provider_message_id = $3, sent_at = $4, updated_at = $4, last_error = NULL
		WHERE id = $1 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, id, domain.ItemStatusSent, providerMessageID, at, domain.ItemStatusProcessing)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking item sent", "error", err, "item_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemStateChanged
	}
	return nil
}

func (r *pgQueueItemRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	query := `
		UPDATE comm_queue_items
		SET status = $2, last_error = $3, failed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, id, domain.ItemStatusFailed, errMsg, at, domain.ItemStatusProcessing)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking item failed", "error", err, "item_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemStateChanged
	}
	return nil
}

func (r *pgQueueItemRepository) Requeue(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt, at time.Time) error {
	query := `
		UPDATE comm_queue_items
		SET status = $2, retry_count = retry_count + 1, last_error = $3, scheduled_at = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, id, domain.ItemStatusPending, errMsg, nextAttempt, at, domain.ItemStatusProcessing)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error requeueing item", "error", err, "item_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemStateChanged
	}
	return nil
}

func (r *pgQueueItemRepository) CancelActiveForBatch(ctx context.Context, batchID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE comm_queue_items
		SET status = $2, cancelled_at = $3, updated_at = $3
		WHERE batch_id = $1 AND status IN ($4, $5)
	`
	tag, err := r.db.Exec(ctx, query, batchID, domain.ItemStatusCancelled, at, domain.ItemStatusPending, domain.ItemStatusProcessing)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error cancelling batch items", "error", err, "batch_id", batchID)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueItemRepository) CountByStatusForBatch(ctx context.Context, batchID uuid.UUID) (domain.BatchCounts, error) {
	query := `SELECT status, COUNT(*) FROM comm_queue_items WHERE batch_id = $1 GROUP BY status`
	var counts domain.BatchCounts

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error counting items by status", "error", err, "batch_id", batchID)
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return counts, err
		}
		switch status {
		case domain.ItemStatusSent:
			counts.Sent = count
		case domain.ItemStatusFailed:
			counts.Failed = count
		case domain.ItemStatusPending:
			counts.Pending = count
		case domain.ItemStatusProcessing:
			counts.Processing = count
		case domain.ItemStatusCancelled:
			counts.Cancelled = count
		}
	}
	return counts, rows.Err()
}

func (r *pgQueueItemRepository) CountSentSince(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM comm_queue_items WHERE org_id = $1 AND status = $2 AND sent_at >= $3`
	var count int
	if err := r.db.QueryRow(ctx, query, orgID, domain.ItemStatusSent, since).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Error counting sent items", "error", err, "org_id", orgID)
		return 0, err
	}
	return count, nil
}

func (r *pgQueueItemRepository) RecentFailures(ctx context.Context, batchID uuid.UUID, limit int) ([]*domain.FailureDetail, error) {
	query := `
		SELECT i.recipient_id, COALESCE(r.first_name || ' ' || r.last_name, ''), COALESCE(i.last_error, ''), i.failed_at
		FROM comm_queue_items i
		LEFT JOIN recipients r ON r.id = i.recipient_id
		WHERE i.batch_id = $1 AND i.status = $2
		ORDER BY i.failed_at DESC NULLS LAST
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, batchID, domain.ItemStatusFailed, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing recent failures", "error", err, "batch_id", batchID)
		return nil, err
	}
	defer rows.Close()

	var failures []*domain.FailureDetail
	for rows.Next() {
		f := &domain.FailureDetail{}
		if err := rows.Scan(&f.RecipientID, &f.RecipientName, &f.Error, &f.FailedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (r *pgQueueItemRepository) ListForBatch(ctx context.Context, batchID uuid.UUID, filter repository.ItemFilter) ([]*domain.QueueItem, int, error) {
	conditions := []string{"batch_id = $1"}
	args := []any{batchID}
	argCounter := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCounter))
		args = append(args, filter.Status)
		argCounter++
	}
	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	var totalCount int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM comm_queue_items"+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, 0, err
	}
	if totalCount == 0 {
		return []*domain.QueueItem{}, 0, nil
	}

	query := "SELECT " + itemColumns + " FROM comm_queue_items" + whereClause + " ORDER BY created_at ASC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		item := &domain.QueueItem{}
		if err := scanItem(rows, item); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, totalCount, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, item *domain.QueueItem) error {
	return row.Scan(
		&item.ID, &item.BatchID, &item.OrgID, &item.RecipientID, &item.Channel, &item.Address,
		&item.Subject, &item.Body, &item.Status,
		&item.RetryCount, &item.LastError, &item.ScheduledAt, &item.SentAt, &item.FailedAt, &item.CancelledAt,
		&item.ProviderMessageID, &item.CreatedAt, &item.UpdatedAt,
	)
}

func prefixedItemColumns(alias string) string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
