// ABOUTME: Tests for canonical CRM models
// ABOUTME: Covers provider parsing, credential expiry, sync state change detection and results
package models

import (
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input string
		want  Provider
		valid bool
	}{
		{"salesforce", ProviderSalesforce, true},
		{" HubSpot ", ProviderHubSpot, true},
		{"PIPEDRIVE", ProviderPipedrive, true},
		{"zoho", Provider("zoho"), false},
	}

	for _, tt := range tests {
		got := ParseProvider(tt.input)
		if got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if got.Valid() != tt.valid {
			t.Errorf("%q.Valid() = %v, want %v", got, got.Valid(), tt.valid)
		}
	}
}

func TestProviderIDField(t *testing.T) {
	if got := ProviderSalesforce.IDField(); got != "salesforceId" {
		t.Errorf("expected salesforceId, got %s", got)
	}
}

func TestCredentialsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(30 * time.Second)

	creds := Credentials{ExpiresAt: &expires}
	if creds.Expired(now, 0) {
		t.Error("token should not be expired without skew")
	}
	if !creds.Expired(now, time.Minute) {
		t.Error("token should be expired inside the skew window")
	}

	if (Credentials{}).Expired(now, time.Hour) {
		t.Error("token without expiry should never be expired")
	}
}

func TestSyncStateChangeDetection(t *testing.T) {
	synced := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state := SyncState{LastSyncedAt: synced, CRMUpdatedAt: synced}

	if state.LocalChanged(synced) {
		t.Error("local record updated exactly at last sync is unchanged")
	}
	if !state.LocalChanged(synced.Add(time.Second)) {
		t.Error("local record updated after last sync is changed")
	}
	if state.CRMChanged() {
		t.Error("crm side should be unchanged")
	}

	state.CRMUpdatedAt = synced.Add(time.Minute)
	if !state.CRMChanged() {
		t.Error("crm side should be changed")
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("bidirectional")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IncludesToCRM() || !d.IncludesFromCRM() {
		t.Error("bidirectional should include both phases")
	}

	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("expected error for invalid direction")
	}
}

func TestSyncResultSuccessRate(t *testing.T) {
	r := SyncResult{RecordsProcessed: 4, RecordsSuccess: 3, RecordsFailed: 1}
	if r.SuccessRate() != 0.75 {
		t.Errorf("expected 0.75, got %f", r.SuccessRate())
	}
	if (SyncResult{}).SuccessRate() != 1 {
		t.Error("empty run should report full success rate")
	}
}

func TestSyncResultUnresolved(t *testing.T) {
	r := SyncResult{Conflicts: []SyncConflict{
		{LocalID: "a", Winner: SideCRM},
		{LocalID: "b", Winner: SideNone},
	}}

	unresolved := r.Unresolved()
	if len(unresolved) != 1 || unresolved[0].LocalID != "b" {
		t.Errorf("expected only b unresolved, got %+v", unresolved)
	}
}

func TestActivityValidate(t *testing.T) {
	a := &Activity{Type: ActivityCall, Subject: "Intro", ContactID: "c1"}
	if err := a.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	a.Type = "lunch"
	if err := a.Validate(); err == nil {
		t.Error("expected error for unknown type")
	}

	a = &Activity{Type: ActivityTask, Subject: "Follow up"}
	if err := a.Validate(); err == nil {
		t.Error("expected error for unlinked activity")
	}
}

func TestNoteValidate(t *testing.T) {
	if err := (&Note{Content: "  ", ContactID: "c"}).Validate(); err == nil {
		t.Error("expected error for empty content")
	}
	if err := (&Note{Content: "hello", DealID: "d"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
