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

const recipientColumns = `id, org_id, first_name, last_name, phone, email, date_of_birth,
       last_visit_at, next_appointment_at, sms_consent, email_consent, created_at, updated_at`

type pgRecipientRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPgRecipientRepository creates the PostgreSQL recipient repository.
func NewPgRecipientRepository(db DBPool, logger *slog.Logger) repository.RecipientRepository {
	return &pgRecipientRepository{db: db, logger: logger}
}

func (r *pgRecipientRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE org_id = $1 AND id = $2`
	rec := &domain.Recipient{}
	err := r.db.QueryRow(ctx, query, orgID, id).Scan(
		&rec.ID, &rec.OrgID, &rec.FirstName, &rec.LastName, &rec.Phone, &rec.Email, &rec.DateOfBirth,
		&rec.LastVisitAt, &rec.NextAppointmentAt, &rec.SMSConsent, &rec.EmailConsent, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecipientNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting recipient by ID", "error", err, "recipient_id", id)
		return nil, err
	}
	return rec, nil
}

func (r *pgRecipientRepository) GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*domain.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE org_id = $1 AND id = ANY($2)`
	rows, err := r.db.Query(ctx, query, orgID, ids)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error getting recipients by IDs", "error", err, "org_id", orgID)
		return nil, err
	}
	defer rows.Close()

	var recipients []*domain.Recipient
	for rows.Next() {
		rec := &domain.Recipient{}
		if err := rows.Scan(
			&rec.ID, &rec.OrgID, &rec.FirstName, &rec.LastName, &rec.Phone, &rec.Email, &rec.DateOfBirth,
			&rec.LastVisitAt, &rec.NextAppointmentAt, &rec.SMSConsent, &rec.EmailConsent, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}
