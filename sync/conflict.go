// ABOUTME: Conflict detection and resolution between a local contact and its CRM record
// ABOUTME: A conflict means both sides moved since the last successful sync
package sync

import (
	"time"

	"github.com/harperreed/crmsync/models"
)

// Resolve picks the winning side for a conflict under policy. newest_wins
// compares update timestamps and gives ties to the local side. manual
// returns SideNone.
func Resolve(policy models.ConflictResolution, localUpdated, crmUpdated time.Time) models.Side {
	switch policy {
	case models.ConflictLocalWins:
		return models.SideLocal
	case models.ConflictCRMWins:
		return models.SideCRM
	case models.ConflictNewestWins:
		if crmUpdated.After(localUpdated) {
			return models.SideCRM
		}
		return models.SideLocal
	}
	return models.SideNone
}

// inConflict reports whether both sides changed since the state's last sync.
func inConflict(state *models.SyncState, localUpdated, crmUpdated time.Time) bool {
	return localUpdated.After(state.LastSyncedAt) && crmUpdated.After(state.LastSyncedAt)
}

func newConflict(state *models.SyncState, phase models.Direction, policy models.ConflictResolution, localUpdated, crmUpdated time.Time) models.SyncConflict {
	return models.SyncConflict{
		LocalID:        state.LocalID,
		CRMRecordID:    state.CRMRecordID,
		Phase:          phase,
		LocalUpdatedAt: localUpdated,
		CRMUpdatedAt:   crmUpdated,
		Resolution:     policy,
		Winner:         Resolve(policy, localUpdated, crmUpdated),
	}
}

// syncedAt is the LastSyncedAt stamped after a successful exchange: the
// latest of now and the record timestamps seen, so clock skew between us and
// the CRM cannot make the record look changed on the next run.
func syncedAt(now time.Time, seen ...time.Time) time.Time {
	at := now
	for _, t := range seen {
		if t.After(at) {
			at = t
		}
	}
	return at
}
