package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableDefinitions lists the tracking store's schema statements (the
// send_tracking table, its indexes, and the updated_at trigger), following
// the teacher's schema/tables.go convention of a plain ordered slice
// executed at pool creation time.
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS send_tracking (
		id                  BIGSERIAL PRIMARY KEY,
		contact_id          VARCHAR(255) NOT NULL,
		email_type          VARCHAR(32) NOT NULL,
		scheduled_date      DATE NOT NULL,
		send_status         VARCHAR(32) NOT NULL DEFAULT 'pending',
		send_mode           VARCHAR(16) NOT NULL DEFAULT 'test',
		test_recipient      VARCHAR(255) NOT NULL DEFAULT '',
		attempt_count       INTEGER NOT NULL DEFAULT 0,
		last_attempt_at     TIMESTAMPTZ,
		last_error          TEXT NOT NULL DEFAULT '',
		batch_id            VARCHAR(64) NOT NULL,
		provider_message_id VARCHAR(255) NOT NULL DEFAULT '',
		delivery_status     VARCHAR(32) NOT NULL DEFAULT '',
		status_checked_at   TIMESTAMPTZ,
		status_details      TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_batch_id ON send_tracking (batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_send_status ON send_tracking (send_status)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_contact_id ON send_tracking (contact_id)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_contact_email_type ON send_tracking (contact_id, email_type)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_status_scheduled ON send_tracking (send_status, scheduled_date)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_provider_message_id ON send_tracking (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_send_tracking_delivery_status ON send_tracking (delivery_status)`,
	`CREATE OR REPLACE FUNCTION send_tracking_set_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = now();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS send_tracking_updated_at_trigger ON send_tracking`,
	`CREATE TRIGGER send_tracking_updated_at_trigger
	BEFORE UPDATE ON send_tracking
	FOR EACH ROW EXECUTE FUNCTION send_tracking_set_updated_at()`,
}

// InitializeSchema runs every table definition against an organization's
// database pool. Each statement is idempotent (IF NOT EXISTS, OR REPLACE,
// or a DROP TRIGGER IF EXISTS before the trigger is re-created), so this
// is safe to call on every pool creation, not just the first.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range TableDefinitions {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
