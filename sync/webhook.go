// ABOUTME: Folds normalized CRM webhook events into sync states
// ABOUTME: Advancing CRMUpdatedAt lets the next run see CRM-side edits as conflicts
package sync

import (
	"github.com/harperreed/crmsync/models"
)

// ApplyWebhookEvent returns copies of the states the event touches, with
// CRMUpdatedAt moved forward to the event time. Events for other providers,
// non-contact objects, deletions and stale timestamps change nothing. States
// are never removed here; orphaned links are left to the caller.
func ApplyWebhookEvent(states []models.SyncState, event *models.CRMWebhookEvent) []models.SyncState {
	if event == nil || event.ObjectType != models.ObjectContact || event.Action == models.ActionDeleted {
		return nil
	}

	var changed []models.SyncState
	for _, s := range states {
		if s.Provider != event.Provider || s.CRMRecordID != event.ObjectID {
			continue
		}
		if !event.Timestamp.After(s.CRMUpdatedAt) {
			continue
		}
		s.CRMUpdatedAt = event.Timestamp
		changed = append(changed, s)
	}
	return changed
}
