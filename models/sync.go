// ABOUTME: Sync run vocabulary: directions, conflict policies, state links and results
// ABOUTME: SyncState links one local contact to one provider record
package models

import (
	"fmt"
	"time"
)

// Direction of a sync run or of a field mapping.
type Direction string

const (
	DirectionToCRM         Direction = "to_crm"
	DirectionFromCRM       Direction = "from_crm"
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	switch d {
	case DirectionToCRM, DirectionFromCRM, DirectionBidirectional:
		return d, nil
	}
	return "", fmt.Errorf("invalid sync direction %q", s)
}

// IncludesToCRM reports whether records flow from the application to the CRM.
func (d Direction) IncludesToCRM() bool {
	return d == DirectionToCRM || d == DirectionBidirectional
}

// IncludesFromCRM reports whether records flow from the CRM to the application.
func (d Direction) IncludesFromCRM() bool {
	return d == DirectionFromCRM || d == DirectionBidirectional
}

// ConflictResolution policy applied when both sides changed since the last sync.
type ConflictResolution string

const (
	ConflictLocalWins  ConflictResolution = "adsapp_wins"
	ConflictCRMWins    ConflictResolution = "crm_wins"
	ConflictNewestWins ConflictResolution = "newest_wins"
	ConflictManual     ConflictResolution = "manual"
)

// ParseConflictResolution validates a policy string.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	c := ConflictResolution(s)
	switch c {
	case ConflictLocalWins, ConflictCRMWins, ConflictNewestWins, ConflictManual:
		return c, nil
	}
	return "", fmt.Errorf("invalid conflict resolution %q", s)
}

// Side of a sync link.
type Side string

const (
	SideNone  Side = ""
	SideLocal Side = "local"
	SideCRM   Side = "crm"
)

// SyncState links a local contact to its record in one provider.
type SyncState struct {
	LocalID        string    `json:"local_id"`
	Provider       Provider  `json:"provider"`
	CRMRecordID    string    `json:"crm_record_id"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
	LocalUpdatedAt time.Time `json:"local_updated_at"`
	CRMUpdatedAt   time.Time `json:"crm_updated_at"`
}

// LocalChanged reports whether the local record moved since the last sync.
func (s *SyncState) LocalChanged(localUpdated time.Time) bool {
	return localUpdated.After(s.LastSyncedAt)
}

// CRMChanged reports whether the last known CRM update is newer than the last sync.
func (s *SyncState) CRMChanged() bool {
	return s.CRMUpdatedAt.After(s.LastSyncedAt)
}

// SyncError is one per-record failure of a sync run.
type SyncError struct {
	LocalID     string    `json:"local_id,omitempty"`
	CRMRecordID string    `json:"crm_record_id,omitempty"`
	Phase       Direction `json:"phase"`
	Message     string    `json:"message"`
	Retryable   bool      `json:"retryable"`
}

// SyncConflict records a record that both sides modified since the last sync.
type SyncConflict struct {
	LocalID        string             `json:"local_id"`
	CRMRecordID    string             `json:"crm_record_id"`
	Phase          Direction          `json:"phase"`
	LocalUpdatedAt time.Time          `json:"local_updated_at"`
	CRMUpdatedAt   time.Time          `json:"crm_updated_at"`
	Resolution     ConflictResolution `json:"resolution"`
	Winner         Side               `json:"winner"`
}

// Resolved reports whether a side was picked. Manual conflicts stay unresolved.
func (c SyncConflict) Resolved() bool {
	return c.Winner != SideNone
}

// SyncResult is the aggregate outcome of one sync run. It is built once at the
// end of the run and not modified afterwards.
type SyncResult struct {
	RunID            string         `json:"run_id"`
	Provider         Provider       `json:"provider"`
	Direction        Direction      `json:"direction"`
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	RecordsProcessed int            `json:"records_processed"`
	RecordsSuccess   int            `json:"records_success"`
	RecordsFailed    int            `json:"records_failed"`
	RecordsSkipped   int            `json:"records_skipped"`
	RecordsUnmapped  int            `json:"records_unmapped"`
	Errors           []SyncError    `json:"errors,omitempty"`
	Conflicts        []SyncConflict `json:"conflicts,omitempty"`
	Cancelled        bool           `json:"cancelled,omitempty"`
}

// SuccessRate is RecordsSuccess / RecordsProcessed, or 1 for an empty run.
func (r SyncResult) SuccessRate() float64 {
	if r.RecordsProcessed == 0 {
		return 1
	}
	return float64(r.RecordsSuccess) / float64(r.RecordsProcessed)
}

// Unresolved returns the conflicts left for a human to reconcile.
func (r SyncResult) Unresolved() []SyncConflict {
	var out []SyncConflict
	for _, c := range r.Conflicts {
		if !c.Resolved() {
			out = append(out, c)
		}
	}
	return out
}

// Connection status constants.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)
