package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

type pgTemplateRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPgTemplateRepository creates the PostgreSQL message template repository.
func NewPgTemplateRepository(db DBPool, logger *slog.Logger) repository.TemplateRepository {
	return &pgTemplateRepository{db: db, logger: logger}
}

func (r *pgTemplateRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.MessageTemplate, error) {
	query := `
		SELECT id, org_id, name, channel, subject, content, created_at, updated_at
		FROM message_templates
		WHERE org_id = $1 AND id = $2
	`
	tpl := &domain.MessageTemplate{}
	err := r.db.QueryRow(ctx, query, orgID, id).Scan(
		&tpl.ID, &tpl.OrgID, &tpl.Name, &tpl.Channel, &tpl.Subject, &tpl.Content, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting template by ID", "error", err, "template_id", id)
		return nil, err
	}
	return tpl, nil
}
