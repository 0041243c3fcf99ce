package repository

import (
	"context"

	"patientdocs/internal/model"
)

// DocumentRepository defines data access for patient document rows using SQL
// queries only. No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document row. The caller provides required fields
	// (e.g., ID, CreatedAt); the stored row is returned.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// ListByPatient returns all document rows for a patient, most recent first.
	ListByPatient(ctx context.Context, patientID string) ([]model.Document, error)

	// DeleteByID removes a document row. Returns nil if the row did not exist.
	DeleteByID(ctx context.Context, id string) error
}

// UserRepository persists authenticated uploaders keyed by their external
// identity-provider id.
type UserRepository interface {
	// Upsert inserts the user or refreshes an existing row with the same
	// external id. The operation is idempotent.
	Upsert(ctx context.Context, u *model.User) (*model.User, error)
}
