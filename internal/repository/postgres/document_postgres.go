package postgres

import (
	"context"
	"database/sql"

	"patientdocs/internal/model"
	"patientdocs/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, patient_id, user_id, file_name, file_type, file_size,
		blob_url, blob_path, blob_container, uploaded_by, created_at`

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO patient_documents
			(id, patient_id, user_id, file_name, file_type, file_size,
			 blob_url, blob_path, blob_container, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.PatientID,
		doc.UserID,
		doc.FileName,
		doc.FileType,
		doc.FileSize,
		doc.BlobURL,
		doc.BlobPath,
		doc.BlobContainer,
		doc.UploadedBy,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// ListByPatient fetches all document rows for the patient, newest first.
func (r *DocumentPostgres) ListByPatient(ctx context.Context, patientID string) ([]model.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM patient_documents
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID,
			&d.PatientID,
			&d.UserID,
			&d.FileName,
			&d.FileType,
			&d.FileSize,
			&d.BlobURL,
			&d.BlobPath,
			&d.BlobContainer,
			&d.UploadedBy,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteByID removes a document row. It does not return an error if the row
// does not exist.
func (r *DocumentPostgres) DeleteByID(ctx context.Context, id string) error {
	const q = `DELETE FROM patient_documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

func scanDocument(row *sql.Row) (*model.Document, error) {
	var d model.Document
	if err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.UserID,
		&d.FileName,
		&d.FileType,
		&d.FileSize,
		&d.BlobURL,
		&d.BlobPath,
		&d.BlobContainer,
		&d.UploadedBy,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
