package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestApplyWebhookEvent(t *testing.T) {
	synced := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	states := []models.SyncState{
		{LocalID: "l1", Provider: models.ProviderHubSpot, CRMRecordID: "101", LastSyncedAt: synced, CRMUpdatedAt: synced},
		{LocalID: "l2", Provider: models.ProviderHubSpot, CRMRecordID: "102", LastSyncedAt: synced, CRMUpdatedAt: synced},
		{LocalID: "l1", Provider: models.ProviderPipedrive, CRMRecordID: "101", LastSyncedAt: synced, CRMUpdatedAt: synced},
	}
	event := &models.CRMWebhookEvent{
		Provider:   models.ProviderHubSpot,
		ObjectType: models.ObjectContact,
		ObjectID:   "101",
		Action:     models.ActionUpdated,
		Timestamp:  synced.Add(time.Minute),
	}

	changed := ApplyWebhookEvent(states, event)
	require.Len(t, changed, 1)
	assert.Equal(t, "l1", changed[0].LocalID)
	assert.Equal(t, models.ProviderHubSpot, changed[0].Provider)
	assert.Equal(t, synced.Add(time.Minute), changed[0].CRMUpdatedAt)
	assert.True(t, changed[0].CRMChanged())

	assert.Equal(t, synced, states[0].CRMUpdatedAt, "input states are not modified")
}

func TestApplyWebhookEventIgnores(t *testing.T) {
	synced := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	states := []models.SyncState{
		{LocalID: "l1", Provider: models.ProviderHubSpot, CRMRecordID: "101", CRMUpdatedAt: synced},
	}
	base := models.CRMWebhookEvent{
		Provider: models.ProviderHubSpot, ObjectType: models.ObjectContact, ObjectID: "101",
		Action: models.ActionUpdated, Timestamp: synced.Add(time.Minute),
	}

	deleted := base
	deleted.Action = models.ActionDeleted
	deal := base
	deal.ObjectType = models.ObjectDeal
	stale := base
	stale.Timestamp = synced.Add(-time.Minute)
	other := base
	other.ObjectID = "999"

	for _, ev := range []models.CRMWebhookEvent{deleted, deal, stale, other} {
		assert.Empty(t, ApplyWebhookEvent(states, &ev))
	}
	assert.Empty(t, ApplyWebhookEvent(states, nil))
}
