package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

const batchColumns = `id, org_id, channel, status, priority, total_count, sent_count, failed_count,
       pending_count, processing_count, subject, content, template_id, scheduled_at,
       started_at, completed_at, created_by, created_at, updated_at`

type pgBatchStore struct {
	db        DBPool
	chunkSize int
	logger    *slog.Logger
}

// NewPgBatchStore creates the PostgreSQL batch store. Queue items are inserted
// in chunks of chunkSize rows to keep single statements bounded.
func NewPgBatchStore(db DBPool, chunkSize int, logger *slog.Logger) repository.BatchStore {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &pgBatchStore{db: db, chunkSize: chunkSize, logger: logger}
}

func (s *pgBatchStore) CreateWithItems(ctx context.Context, batch *domain.Batch, items []*domain.QueueItem, skipped []*domain.SkippedRecipient) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		insertBatch := `
			INSERT INTO comm_batches (` + batchColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		`
		if _, err := tx.Exec(ctx, insertBatch,
			batch.ID, batch.OrgID, batch.Channel, batch.Status, batch.Priority,
			batch.TotalCount, batch.SentCount, batch.FailedCount, batch.PendingCount, batch.ProcessingCount,
			batch.Subject, batch.Content, batch.TemplateID, batch.ScheduledAt,
			batch.StartedAt, batch.CompletedAt, batch.CreatedBy, batch.CreatedAt, batch.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for start := 0; start < len(items); start += s.chunkSize {
			end := start + s.chunkSize
			if end > len(items) {
				end = len(items)
			}
			if err := insertItemChunk(ctx, tx, items[start:end]); err != nil {
				return fmt.Errorf("insert item chunk [%d:%d]: %w", start, end, err)
			}
		}

		for _, sk := range skipped {
			insertSkip := `
				INSERT INTO comm_skipped_recipients (id, batch_id, recipient_id, name, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`
			if _, err := tx.Exec(ctx, insertSkip, sk.ID, sk.BatchID, sk.RecipientID, sk.Name, sk.Reason, sk.CreatedAt); err != nil {
				return fmt.Errorf("insert skipped recipient: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating batch with items", "error", err, "batch_id", batch.ID)
		return err
	}
	s.logger.InfoContext(ctx, "Batch created", "batch_id", batch.ID, "items", len(items), "skipped", len(skipped))
	return nil
}

func insertItemChunk(ctx context.Context, tx pgx.Tx, items []*domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	const cols = 13
	var sb strings.Builder
	sb.WriteString(`INSERT INTO comm_queue_items
		(id, batch_id, org_id, recipient_id, channel, address, subject, body, status, retry_count, scheduled_at, created_at, updated_at)
		VALUES `)
	args := make([]any, 0, len(items)*cols)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		sb.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")
		args = append(args,
			it.ID, it.BatchID, it.OrgID, it.RecipientID, it.Channel, it.Address,
			it.Subject, it.Body, it.Status, it.RetryCount, it.ScheduledAt, it.CreatedAt, it.UpdatedAt,
		)
	}
	_, err := tx.Exec(ctx, sb.String(), args...)
	return err
}

func (s *pgBatchStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM comm_batches WHERE id = $1`
	b := &domain.Batch{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.OrgID, &b.Channel, &b.Status, &b.Priority,
		&b.TotalCount, &b.SentCount, &b.FailedCount, &b.PendingCount, &b.ProcessingCount,
		&b.Subject, &b.Content, &b.TemplateID, &b.ScheduledAt,
		&b.StartedAt, &b.CompletedAt, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		s.logger.ErrorContext(ctx, "Error getting batch by ID", "error", err, "batch_id", id)
		return nil, err
	}
	return b, nil
}

func (s *pgBatchStore) MarkProcessing(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE comm_batches
		SET status = $1, started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE id = ANY($3) AND status NOT IN ($4, $5, $6)
	`
	_, err := s.db.Exec(ctx, query,
		domain.BatchStatusProcessing, at, ids,
		domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors, domain.BatchStatusCancelled,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking batches processing", "error", err, "batch_ids", ids)
		return err
	}
	return nil
}

func (s *pgBatchStore) UpdateStats(ctx context.Context, id uuid.UUID, counts domain.BatchCounts, status domain.BatchStatus, completedAt *time.Time) (bool, error) {
	query := `
		UPDATE comm_batches
		SET sent_count = $2, failed_count = $3, pending_count = $4, processing_count = $5,
		    status = $6, completed_at = COALESCE($7, completed_at), updated_at = $8
		WHERE id = $1 AND status NOT IN ($9, $10, $11)
	`
	tag, err := s.db.Exec(ctx, query,
		id, counts.Sent, counts.Failed, counts.Pending, counts.Processing,
		status, completedAt, time.Now().UTC(),
		domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors, domain.BatchStatusCancelled,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating batch stats", "error", err, "batch_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgBatchStore) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE comm_batches
		SET status = $2, completed_at = $3, pending_count = 0, processing_count = 0, updated_at = $3
		WHERE id = $1 AND status NOT IN ($4, $5, $6)
	`
	tag, err := s.db.Exec(ctx, query,
		id, domain.BatchStatusCancelled, at,
		domain.BatchStatusCompleted, domain.BatchStatusCompletedWithErrors, domain.BatchStatusCancelled,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error cancelling batch", "error", err, "batch_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidBatchState
	}
	s.logger.InfoContext(ctx, "Batch cancelled", "batch_id", id)
	return nil
}

func (s *pgBatchStore) List(ctx context.Context, filter repository.BatchFilter) ([]*domain.Batch, int, error) {
	var conditions []string
	var args []any
	argCounter := 1

	if filter.OrgID.Valid {
		conditions = append(conditions, fmt.Sprintf("org_id = $%d", argCounter))
		args = append(args, filter.OrgID.UUID)
		argCounter++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCounter))
		args = append(args, filter.Status)
		argCounter++
	}
	if filter.Channel != "" {
		conditions = append(conditions, fmt.Sprintf("channel = $%d", argCounter))
		args = append(args, filter.Channel)
		argCounter++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM comm_batches"+whereClause, args...).Scan(&totalCount); err != nil {
		s.logger.ErrorContext(ctx, "Error counting batches", "error", err)
		return nil, 0, err
	}
	if totalCount == 0 {
		return []*domain.Batch{}, 0, nil
	}

	query := "SELECT " + batchColumns + " FROM comm_batches" + whereClause + " ORDER BY created_at DESC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing batches", "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		b := &domain.Batch{}
		if err := rows.Scan(
			&b.ID, &b.OrgID, &b.Channel, &b.Status, &b.Priority,
			&b.TotalCount, &b.SentCount, &b.FailedCount, &b.PendingCount, &b.ProcessingCount,
			&b.Subject, &b.Content, &b.TemplateID, &b.ScheduledAt,
			&b.StartedAt, &b.CompletedAt, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return batches, totalCount, nil
}
