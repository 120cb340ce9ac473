// ABOUTME: Tests for connection records
// ABOUTME: Covers upsert, credential refresh, status checks and disconnect
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestUpsertAndGetConnection(t *testing.T) {
	db := setupTestDB(t)

	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	conn := &Connection{
		OrgID:    "org-1",
		Provider: models.ProviderHubSpot,
		Credentials: models.Credentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    &expires,
		},
	}
	require.NoError(t, UpsertConnection(db, conn))
	assert.Equal(t, models.StatusConnected, conn.Status)

	got, err := GetConnection(db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access", got.Credentials.AccessToken)
	require.NotNil(t, got.Credentials.ExpiresAt)
	assert.True(t, expires.Equal(*got.Credentials.ExpiresAt))
	assert.Nil(t, got.LastValidatedAt)

	conn.Credentials.AccessToken = "rotated"
	require.NoError(t, UpsertConnection(db, conn))

	got, err = GetConnection(db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Credentials.AccessToken)
}

func TestGetConnectionMissing(t *testing.T) {
	db := setupTestDB(t)

	got, err := GetConnection(db, "org-1", models.ProviderPipedrive)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListConnectionsScopedByOrg(t *testing.T) {
	db := setupTestDB(t)

	for _, c := range []*Connection{
		{OrgID: "org-1", Provider: models.ProviderSalesforce},
		{OrgID: "org-1", Provider: models.ProviderHubSpot},
		{OrgID: "org-2", Provider: models.ProviderPipedrive},
	} {
		require.NoError(t, UpsertConnection(db, c))
	}

	conns, err := ListConnections(db, "org-1")
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, models.ProviderHubSpot, conns[0].Provider)
	assert.Equal(t, models.ProviderSalesforce, conns[1].Provider)
}

func TestSaveCredentials(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, UpsertConnection(db, &Connection{OrgID: "org-1", Provider: models.ProviderSalesforce}))

	err := SaveCredentials(db, "org-1", models.ProviderSalesforce, models.Credentials{AccessToken: "fresh", InstanceURL: "https://x.my.salesforce.com"})
	require.NoError(t, err)

	got, err := GetConnection(db, "org-1", models.ProviderSalesforce)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Credentials.AccessToken)
	assert.Equal(t, "https://x.my.salesforce.com", got.Credentials.InstanceURL)

	err = SaveCredentials(db, "org-9", models.ProviderSalesforce, models.Credentials{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConnectionStatus(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, UpsertConnection(db, &Connection{OrgID: "org-1", Provider: models.ProviderPipedrive, Account: "Acme"}))

	checked := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	err := UpdateConnectionStatus(db, "org-1", models.ConnectionStatus{
		Provider:  models.ProviderPipedrive,
		Connected: false,
		CheckedAt: checked,
		Error:     "token revoked",
	})
	require.NoError(t, err)

	got, err := GetConnection(db, "org-1", models.ProviderPipedrive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "token revoked", got.LastError)
	assert.Equal(t, "Acme", got.Account, "empty account keeps the stored one")
	require.NotNil(t, got.LastValidatedAt)
	assert.True(t, checked.Equal(*got.LastValidatedAt))

	err = UpdateConnectionStatus(db, "org-1", models.ConnectionStatus{Provider: models.ProviderHubSpot, Connected: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkDisconnected(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, UpsertConnection(db, &Connection{
		OrgID:       "org-1",
		Provider:    models.ProviderHubSpot,
		Credentials: models.Credentials{AccessToken: "secret"},
	}))

	require.NoError(t, MarkDisconnected(db, "org-1", models.ProviderHubSpot))

	got, err := GetConnection(db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, got.Status)
	assert.Empty(t, got.Credentials.AccessToken)
}
