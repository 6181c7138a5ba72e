package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS violation_events (
		id                       BIGSERIAL PRIMARY KEY,
		event_id                 TEXT NOT NULL,
		company_id               TEXT NOT NULL,
		camera_id                TEXT NOT NULL,
		person_id                TEXT NOT NULL,
		violation_type           TEXT NOT NULL,
		start_time               TIMESTAMPTZ NOT NULL,
		end_time                 TIMESTAMPTZ,
		duration_seconds         NUMERIC(12,2),
		snapshot_path            TEXT,
		resolution_snapshot_path TEXT,
		severity                 TEXT NOT NULL,
		status                   TEXT NOT NULL,
		raw_payload              JSONB,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_violation_events_event_id ON violation_events(event_id);`,
	`CREATE INDEX IF NOT EXISTS idx_violation_events_camera_start ON violation_events(camera_id, start_time);`,
	`CREATE INDEX IF NOT EXISTS idx_violation_events_person_start ON violation_events(person_id, start_time);`,
	`CREATE INDEX IF NOT EXISTS idx_violation_events_company_start ON violation_events(company_id, start_time);`,
	`CREATE INDEX IF NOT EXISTS idx_violation_events_status ON violation_events(status);`,
}

func RunMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
