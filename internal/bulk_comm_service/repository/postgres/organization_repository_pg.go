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

type pgOrganizationRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPgOrganizationRepository creates the PostgreSQL organization repository.
func NewPgOrganizationRepository(db DBPool, logger *slog.Logger) repository.OrganizationRepository {
	return &pgOrganizationRepository{db: db, logger: logger}
}

func (r *pgOrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	query := `SELECT id, name, phone, email, address, locale FROM organizations WHERE id = $1`
	org := &domain.Organization{}
	err := r.db.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name, &org.Phone, &org.Email, &org.Address, &org.Locale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting organization by ID", "error", err, "org_id", id)
		return nil, err
	}
	return org, nil
}
