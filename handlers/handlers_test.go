// ABOUTME: Tests for the MCP tool handlers
// ABOUTME: Handlers are called directly against a temporary database and the CRM fake
package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/crm/crmtest"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

func setupHandlers(t *testing.T) (*Handlers, *crmtest.Client) {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	fake := crmtest.New(models.ProviderHubSpot)
	clients := func(ctx context.Context, orgID string, provider models.Provider) (crm.Client, error) {
		return keepOpen{fake}, nil
	}
	return New(database, "org-1", clients, nil), fake
}

type keepOpen struct{ *crmtest.Client }

func (keepOpen) Close() error { return nil }

func TestAddAndListContacts(t *testing.T) {
	h, _ := setupHandlers(t)
	ctx := context.Background()

	_, contact, err := h.AddContact(ctx, nil, AddContactInput{FirstName: "Grace", Email: "Grace@Navy.mil"})
	require.NoError(t, err)
	assert.NotEmpty(t, contact.ID)
	assert.Equal(t, "grace@navy.mil", contact.Email)

	_, _, err = h.AddContact(ctx, nil, AddContactInput{FirstName: "Alan", Email: "alan@bletchley.uk"})
	require.NoError(t, err)

	_, out, err := h.ListContacts(ctx, nil, ListContactsInput{})
	require.NoError(t, err)
	assert.Len(t, out.Contacts, 2)

	_, out, err = h.ListContacts(ctx, nil, ListContactsInput{Email: "GRACE@navy.mil"})
	require.NoError(t, err)
	require.Len(t, out.Contacts, 1)
	assert.Equal(t, "Grace", out.Contacts[0].FirstName)
}

func TestAddContactValidation(t *testing.T) {
	h, _ := setupHandlers(t)
	ctx := context.Background()

	_, _, err := h.AddContact(ctx, nil, AddContactInput{})
	assert.Error(t, err)

	_, _, err = h.AddContact(ctx, nil, AddContactInput{FirstName: "X", Email: "not-an-email"})
	assert.Error(t, err)
}

func TestConnections(t *testing.T) {
	h, _ := setupHandlers(t)
	ctx := context.Background()

	_, out, err := h.ListConnections(ctx, nil, ListConnectionsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Connections)

	require.NoError(t, db.UpsertConnection(h.db, &db.Connection{
		OrgID:    "org-1",
		Provider: models.ProviderHubSpot,
		Status:   models.StatusConnected,
	}))

	_, status, err := h.CheckConnection(ctx, nil, ProviderInput{Provider: "hubspot"})
	require.NoError(t, err)
	assert.True(t, status.Connected)

	_, out, err = h.ListConnections(ctx, nil, ListConnectionsInput{})
	require.NoError(t, err)
	require.Len(t, out.Connections, 1)
	assert.Equal(t, "hubspot", out.Connections[0].Provider)
	assert.Equal(t, "fake", out.Connections[0].Account)
	assert.NotNil(t, out.Connections[0].LastValidatedAt)

	_, _, err = h.CheckConnection(ctx, nil, ProviderInput{Provider: "zoho"})
	assert.Error(t, err)
}

func TestRunSyncStoresRun(t *testing.T) {
	h, fake := setupHandlers(t)
	ctx := context.Background()

	_, _, err := h.AddContact(ctx, nil, AddContactInput{FirstName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, result, err := h.RunSync(ctx, nil, RunSyncInput{Provider: "hubspot", Direction: "to_crm"})
	require.NoError(t, err)
	assert.Equal(t, "hubspot", result.Provider)
	assert.Zero(t, result.RecordsFailed)
	assert.Equal(t, 1, fake.ContactCount())

	states, err := db.LoadSyncStates(h.db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.Len(t, states, 1)

	_, runs, err := h.ListSyncRuns(ctx, nil, ListSyncRunsInput{Provider: "hubspot"})
	require.NoError(t, err)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, result.RunID, runs.Runs[0].RunID)
}

func TestRunSyncKeepsLinksOfAbortedRun(t *testing.T) {
	h, fake := setupHandlers(t)
	ctx := context.Background()

	_, _, err := h.AddContact(ctx, nil, AddContactInput{FirstName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, _, err = h.AddContact(ctx, nil, AddContactInput{FirstName: "Alan", Email: "alan@example.com"})
	require.NoError(t, err)

	fake.FailNext("CreateContact", nil, crm.ErrAuthentication)
	_, _, err = h.RunSync(ctx, nil, RunSyncInput{Provider: "hubspot", Direction: "to_crm"})
	require.ErrorIs(t, err, crm.ErrAuthentication)
	assert.Equal(t, 1, fake.ContactCount())

	states, err := db.LoadSyncStates(h.db, "org-1", models.ProviderHubSpot)
	require.NoError(t, err)
	assert.Len(t, states, 1)

	_, runs, err := h.ListSyncRuns(ctx, nil, ListSyncRunsInput{Provider: "hubspot"})
	require.NoError(t, err)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, 1, runs.Runs[0].RecordsFailed)

	_, _, err = h.RunSync(ctx, nil, RunSyncInput{Provider: "hubspot", Direction: "to_crm"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.ContactCount())
}

func TestRunSyncRejectsBadInput(t *testing.T) {
	h, _ := setupHandlers(t)
	ctx := context.Background()

	_, _, err := h.RunSync(ctx, nil, RunSyncInput{Provider: "hubspot", Direction: "sideways"})
	assert.Error(t, err)

	_, _, err = h.RunSync(ctx, nil, RunSyncInput{Provider: "hubspot", Since: "yesterday"})
	assert.Error(t, err)

	_, runs, err := h.ListSyncRuns(ctx, nil, ListSyncRunsInput{Provider: "hubspot"})
	require.NoError(t, err)
	assert.Empty(t, runs.Runs)
}
