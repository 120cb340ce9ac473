// ABOUTME: Loads the inputs of a sync run and stores its outcome atomically
// ABOUTME: Contact write-back, sync states and the run record commit together or not at all
package db

import (
	"database/sql"
	"fmt"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
)

// LoadSyncRequest builds a request from the organization's contacts and its
// sync states for provider. Direction and policy are left to the caller.
func LoadSyncRequest(db *sql.DB, orgID string, provider models.Provider) (sync.Request, error) {
	contacts, err := ListContacts(db, orgID)
	if err != nil {
		return sync.Request{}, err
	}
	states, err := LoadSyncStates(db, orgID, provider)
	if err != nil {
		return sync.Request{}, err
	}
	return sync.Request{Contacts: contacts, States: states}, nil
}

// SaveSyncOutcome writes back pulled contacts, the updated sync states and
// the run record in one transaction.
func SaveSyncOutcome(db *sql.DB, orgID string, outcome *sync.Outcome) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, group := range [][]*models.Contact{outcome.LocalUpdates, outcome.NewContacts} {
		for _, c := range group {
			if err := upsertContact(tx, orgID, c); err != nil {
				return fmt.Errorf("failed to apply contact %s: %w", c.ID, err)
			}
		}
	}
	if len(outcome.States) > 0 {
		if err := saveSyncStates(tx, orgID, outcome.States); err != nil {
			return err
		}
	}
	if err := saveSyncRun(tx, orgID, outcome.Result); err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync outcome: %w", err)
	}
	return nil
}
