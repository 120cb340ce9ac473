// ABOUTME: Sync run history
// ABOUTME: Each SyncResult is stored once with its counters in columns and the full result as JSON
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/harperreed/crmsync/models"
)

// SaveSyncRun stores a finished run. Saving the same run id twice fails.
func SaveSyncRun(db *sql.DB, orgID string, result models.SyncResult) error {
	return saveSyncRun(db, orgID, result)
}

func saveSyncRun(db execer, orgID string, result models.SyncResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode sync result: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO sync_runs (id, org_id, provider, direction, started_at, duration_ms, records_processed, records_success, records_failed, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, orgID, string(result.Provider), string(result.Direction), result.StartedAt.UTC(),
		result.Duration.Milliseconds(), result.RecordsProcessed, result.RecordsSuccess, result.RecordsFailed, string(b))
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs for provider, newest first.
func ListSyncRuns(db *sql.DB, orgID string, provider models.Provider, limit int) ([]models.SyncResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT result FROM sync_runs
		WHERE org_id = ? AND provider = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, orgID, string(provider), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var results []models.SyncResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		var r models.SyncResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to decode sync run: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// LastSuccessfulRun returns the newest run that was not cancelled and had no
// failures, or nil. Its start time is a safe cutoff for the next delta sync.
func LastSuccessfulRun(db *sql.DB, orgID string, provider models.Provider) (*models.SyncResult, error) {
	var raw string
	err := db.QueryRow(`
		SELECT result FROM sync_runs
		WHERE org_id = ? AND provider = ? AND records_failed = 0
			AND json_extract(result, '$.cancelled') IS NOT 1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, orgID, string(provider)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}

	var r models.SyncResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("failed to decode sync run: %w", err)
	}
	return &r, nil
}
