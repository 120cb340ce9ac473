// ABOUTME: Persistence for sync state links between local contacts and CRM records
// ABOUTME: One row per organization, local contact and provider; rows are never deleted by a sync
package db

import (
	"database/sql"
	"fmt"

	"github.com/harperreed/crmsync/models"
)

const stateColumns = `local_id, provider, crm_record_id, last_synced_at, local_updated_at, crm_updated_at`

// LoadSyncStates returns every link of an organization to provider.
func LoadSyncStates(db *sql.DB, orgID string, provider models.Provider) ([]models.SyncState, error) {
	rows, err := db.Query(`SELECT `+stateColumns+` FROM crm_sync_state WHERE org_id = ? AND provider = ? ORDER BY local_id`,
		orgID, string(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to load sync states: %w", err)
	}
	return scanStates(rows)
}

// FindSyncStatesByCRMID returns the links pointing at one CRM record.
func FindSyncStatesByCRMID(db *sql.DB, orgID string, provider models.Provider, crmRecordID string) ([]models.SyncState, error) {
	return findSyncStatesByCRMID(db, orgID, provider, crmRecordID)
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func findSyncStatesByCRMID(db querier, orgID string, provider models.Provider, crmRecordID string) ([]models.SyncState, error) {
	rows, err := db.Query(`SELECT `+stateColumns+` FROM crm_sync_state WHERE org_id = ? AND provider = ? AND crm_record_id = ?`,
		orgID, string(provider), crmRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sync states: %w", err)
	}
	return scanStates(rows)
}

// SaveSyncStates upserts states in one transaction.
func SaveSyncStates(db *sql.DB, orgID string, states []models.SyncState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveSyncStates(tx, orgID, states); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync states: %w", err)
	}
	return nil
}

func saveSyncStates(tx *sql.Tx, orgID string, states []models.SyncState) error {
	stmt, err := tx.Prepare(`
		INSERT INTO crm_sync_state (org_id, local_id, provider, crm_record_id, last_synced_at, local_updated_at, crm_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, local_id, provider) DO UPDATE SET
			crm_record_id = excluded.crm_record_id,
			last_synced_at = excluded.last_synced_at,
			local_updated_at = excluded.local_updated_at,
			crm_updated_at = excluded.crm_updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sync state upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range states {
		if _, err := stmt.Exec(orgID, s.LocalID, string(s.Provider), s.CRMRecordID,
			s.LastSyncedAt.UTC(), s.LocalUpdatedAt.UTC(), s.CRMUpdatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to save sync state for %s: %w", s.LocalID, err)
		}
	}
	return nil
}

func scanStates(rows *sql.Rows) ([]models.SyncState, error) {
	defer rows.Close()

	var states []models.SyncState
	for rows.Next() {
		var s models.SyncState
		var provider string
		if err := rows.Scan(&s.LocalID, &provider, &s.CRMRecordID, &s.LastSyncedAt, &s.LocalUpdatedAt, &s.CRMUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		s.Provider = models.Provider(provider)
		s.LastSyncedAt = s.LastSyncedAt.UTC()
		s.LocalUpdatedAt = s.LocalUpdatedAt.UTC()
		s.CRMUpdatedAt = s.CRMUpdatedAt.UTC()
		states = append(states, s)
	}
	return states, rows.Err()
}
