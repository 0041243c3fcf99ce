// Package audit appends immutable event records for security-relevant actions.
// Events are append-only: no update or delete path exists.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the category of a recorded event.
type Kind string

const (
	KindUploadDenied    Kind = "upload_denied"
	KindUploadCompleted Kind = "upload_completed"
	KindListDenied      Kind = "list_denied"
	KindListCompleted   Kind = "list_completed"
)

// Event is one security-relevant occurrence to be recorded.
type Event struct {
	Kind      Kind
	UserID    string
	PatientID string
	Detail    map[string]any
}

// Logger records audit events. Implementations must be safe for concurrent use.
type Logger interface {
	Record(ctx context.Context, ev Event) error
}

// PostgresLogger writes audit events to the audit_events table.
type PostgresLogger struct {
	db *sql.DB
}

// NewPostgresLogger creates a Postgres-backed audit logger.
func NewPostgresLogger(db *sql.DB) *PostgresLogger {
	return &PostgresLogger{db: db}
}

var _ Logger = (*PostgresLogger)(nil)

// Record inserts one audit row. Detail is stored as JSONB; a nil detail is
// stored as an empty object.
func (l *PostgresLogger) Record(ctx context.Context, ev Event) error {
	detail := ev.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	const q = `
		INSERT INTO audit_events (id, kind, user_id, patient_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = l.db.ExecContext(ctx, q,
		uuid.New().String(),
		string(ev.Kind),
		ev.UserID,
		ev.PatientID,
		string(b),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
