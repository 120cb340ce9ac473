// ABOUTME: Database schema definitions
// ABOUTME: Connections, local contacts, sync state links, sync runs and received webhooks
package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS connections (
	org_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	credentials TEXT NOT NULL,
	status TEXT NOT NULL,
	account TEXT NOT NULL DEFAULT '',
	instance_url TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	last_validated_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (org_id, provider)
);

CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	custom_fields TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_org ON contacts(org_id, created_at);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);

CREATE TABLE IF NOT EXISTS crm_sync_state (
	org_id TEXT NOT NULL,
	local_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	crm_record_id TEXT NOT NULL,
	last_synced_at DATETIME NOT NULL,
	local_updated_at DATETIME NOT NULL,
	crm_updated_at DATETIME NOT NULL,
	PRIMARY KEY (org_id, local_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_crm_sync_state_record ON crm_sync_state(org_id, provider, crm_record_id);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	direction TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	records_processed INTEGER NOT NULL,
	records_success INTEGER NOT NULL,
	records_failed INTEGER NOT NULL,
	result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_org_provider ON sync_runs(org_id, provider, started_at);

CREATE TABLE IF NOT EXISTS webhook_events (
	org_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	object_type TEXT NOT NULL,
	object_id TEXT NOT NULL,
	action TEXT NOT NULL,
	payload TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	received_at DATETIME NOT NULL,
	PRIMARY KEY (org_id, provider, id)
);
`

func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
