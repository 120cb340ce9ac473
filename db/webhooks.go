// ABOUTME: Received CRM webhook events
// ABOUTME: The primary key doubles as delivery deduplication for providers that retry
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
)

// SaveWebhookEvent stores a normalized event. It returns false when the same
// event id was already stored for the organization and provider.
func SaveWebhookEvent(db *sql.DB, orgID string, event *models.CRMWebhookEvent) (bool, error) {
	return saveWebhookEvent(db, orgID, event)
}

// RecordWebhookEvent stores event and advances the sync states linked to its
// record in one transaction. When the state update fails no event row is
// kept, so the provider's redelivery is applied instead of counted as a duplicate.
func RecordWebhookEvent(db *sql.DB, orgID string, event *models.CRMWebhookEvent) (inserted bool, updated int, err error) {
	tx, err := db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err = saveWebhookEvent(tx, orgID, event)
	if err != nil || !inserted {
		return false, 0, err
	}

	if event.ObjectType == models.ObjectContact {
		states, err := findSyncStatesByCRMID(tx, orgID, event.Provider, event.ObjectID)
		if err != nil {
			return false, 0, err
		}
		changed := sync.ApplyWebhookEvent(states, event)
		if len(changed) > 0 {
			if err := saveSyncStates(tx, orgID, changed); err != nil {
				return false, 0, err
			}
		}
		updated = len(changed)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit webhook event: %w", err)
	}
	return true, updated, nil
}

func saveWebhookEvent(db execer, orgID string, event *models.CRMWebhookEvent) (bool, error) {
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}

	res, err := db.Exec(`
		INSERT OR IGNORE INTO webhook_events (org_id, provider, id, type, object_type, object_id, action, payload, occurred_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, orgID, string(event.Provider), event.ID, event.Type, string(event.ObjectType), event.ObjectID,
		string(event.Action), payload, event.Timestamp.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to save webhook event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// CountWebhookEvents returns how many events were received from provider.
func CountWebhookEvents(db *sql.DB, orgID string, provider models.Provider) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM webhook_events WHERE org_id = ? AND provider = ?`,
		orgID, string(provider)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook events: %w", err)
	}
	return n, nil
}
