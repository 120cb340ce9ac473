// ABOUTME: Tests for sync state persistence
// ABOUTME: Covers upsert semantics, provider scoping and lookup by CRM record id
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestSaveAndLoadSyncStates(t *testing.T) {
	db := setupTestDB(t)

	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	states := []models.SyncState{
		{LocalID: "b", Provider: models.ProviderHubSpot, CRMRecordID: "201", LastSyncedAt: t0, LocalUpdatedAt: t0, CRMUpdatedAt: t0},
		{LocalID: "a", Provider: models.ProviderHubSpot, CRMRecordID: "101", LastSyncedAt: t0, LocalUpdatedAt: t0, CRMUpdatedAt: t0},
		{LocalID: "a", Provider: models.ProviderPipedrive, CRMRecordID: "7", LastSyncedAt: t0, LocalUpdatedAt: t0, CRMUpdatedAt: t0},
	}
	require.NoError(t, SaveSyncStates(db, "org-1", states))

	loaded, err := LoadSyncStates(db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].LocalID)
	assert.Equal(t, "101", loaded[0].CRMRecordID)
	assert.Equal(t, t0, loaded[0].LastSyncedAt)

	t1 := t0.Add(time.Hour)
	require.NoError(t, SaveSyncStates(db, "org-1", []models.SyncState{
		{LocalID: "a", Provider: models.ProviderHubSpot, CRMRecordID: "101", LastSyncedAt: t1, LocalUpdatedAt: t1, CRMUpdatedAt: t0},
	}))

	loaded, err = LoadSyncStates(db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	require.Len(t, loaded, 2, "upsert does not duplicate the link")
	assert.Equal(t, t1, loaded[0].LastSyncedAt)

	other, err := LoadSyncStates(db, "org-2", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFindSyncStatesByCRMID(t *testing.T) {
	db := setupTestDB(t)

	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, SaveSyncStates(db, "org-1", []models.SyncState{
		{LocalID: "a", Provider: models.ProviderSalesforce, CRMRecordID: "003A", LastSyncedAt: t0, LocalUpdatedAt: t0, CRMUpdatedAt: t0},
		{LocalID: "b", Provider: models.ProviderSalesforce, CRMRecordID: "003B", LastSyncedAt: t0, LocalUpdatedAt: t0, CRMUpdatedAt: t0},
	}))

	found, err := FindSyncStatesByCRMID(db, "org-1", models.ProviderSalesforce, "003B")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].LocalID)
	assert.Equal(t, models.ProviderSalesforce, found[0].Provider)

	found, err = FindSyncStatesByCRMID(db, "org-1", models.ProviderHubSpot, "003B")
	require.NoError(t, err)
	assert.Empty(t, found)
}
