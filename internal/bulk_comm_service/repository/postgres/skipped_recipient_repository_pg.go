package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

type pgSkippedRecipientRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPgSkippedRecipientRepository creates the PostgreSQL skip record repository.
func NewPgSkippedRecipientRepository(db DBPool, logger *slog.Logger) repository.SkippedRecipientRepository {
	return &pgSkippedRecipientRepository{db: db, logger: logger}
}

func (r *pgSkippedRecipientRepository) ListForBatch(ctx context.Context, batchID uuid.UUID) ([]*domain.SkippedRecipient, error) {
	query := `
		SELECT id, batch_id, recipient_id, name, reason, created_at
		FROM comm_skipped_recipients
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing skipped recipients", "error", err, "batch_id", batchID)
		return nil, err
	}
	defer rows.Close()

	var skipped []*domain.SkippedRecipient
	for rows.Next() {
		sk := &domain.SkippedRecipient{}
		if err := rows.Scan(&sk.ID, &sk.BatchID, &sk.RecipientID, &sk.Name, &sk.Reason, &sk.CreatedAt); err != nil {
			return nil, err
		}
		skipped = append(skipped, sk)
	}
	return skipped, rows.Err()
}
