package postgres

import (
	"context"
	"database/sql"

	"patientdocs/internal/model"
	"patientdocs/internal/repository"
)

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db *sql.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

// Upsert inserts the user row or refreshes the existing one keyed by
// external_id. Repeated calls with the same identity are idempotent.
func (r *UserPostgres) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (id, external_id, email, role, patient_id, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET
			email      = EXCLUDED.email,
			role       = EXCLUDED.role,
			patient_id = EXCLUDED.patient_id,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name
		RETURNING id, external_id, email, role, patient_id, first_name, last_name, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		u.ID,
		u.ExternalID,
		u.Email,
		u.Role,
		u.PatientID,
		u.FirstName,
		u.LastName,
		u.CreatedAt,
	)
	var out model.User
	if err := row.Scan(
		&out.ID,
		&out.ExternalID,
		&out.Email,
		&out.Role,
		&out.PatientID,
		&out.FirstName,
		&out.LastName,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}
