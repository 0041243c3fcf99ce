package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  id          UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  external_id TEXT        NOT NULL UNIQUE,
  email       TEXT        NOT NULL,
  role        TEXT        NOT NULL,
  patient_id  TEXT,
  first_name  TEXT,
  last_name   TEXT,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_patient_documents",
		SQL: `CREATE TABLE IF NOT EXISTS patient_documents (
  id             UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  patient_id     TEXT        NOT NULL,
  user_id        UUID        NOT NULL REFERENCES users (id),
  file_name      TEXT        NOT NULL,
  file_type      TEXT        NOT NULL,
  file_size      BIGINT      NOT NULL CHECK (file_size >= 0),
  blob_url       TEXT        NOT NULL,
  blob_path      TEXT        NOT NULL UNIQUE,
  blob_container TEXT        NOT NULL,
  uploaded_by    TEXT        NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_audit_events",
		SQL: `CREATE TABLE IF NOT EXISTS audit_events (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  kind       TEXT        NOT NULL,
  user_id    TEXT        NOT NULL,
  patient_id TEXT        NOT NULL,
  detail     JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_patient_documents_patient_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_patient_documents_patient_id ON patient_documents (patient_id, created_at DESC);`,
	},
	{
		Name: "create_index_audit_events_patient_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_events_patient_id ON audit_events (patient_id);`,
	},
	{
		Name: "create_index_audit_events_kind",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events (kind);`,
	},
}

// EnsureMigrated checks if the 'patient_documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.patient_documents') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
