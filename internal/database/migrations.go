package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate creates the relational schema if it does not exist. Alarms are an
// append-only audit trail; neither alarms nor devices are ever hard-deleted.
func Migrate(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id BIGSERIAL PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			protocol TEXT NOT NULL DEFAULT '',
			config JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'offline',
			last_seen TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id BIGSERIAL PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(device_id),
			alarm_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by TEXT,
			acknowledged_at TIMESTAMPTZ,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_device_created ON alarms (device_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id BIGSERIAL PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(device_id),
			command_type TEXT NOT NULL,
			command_data JSONB NOT NULL DEFAULT '{}',
			issued_by TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			response TEXT,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			executed_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_device_issued ON commands (device_id, issued_at DESC)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
