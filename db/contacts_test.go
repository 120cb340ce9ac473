// ABOUTME: Tests for local contact storage
// ABOUTME: Covers creation defaults, JSON columns, local edits and sync write-back
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestCreateContact(t *testing.T) {
	db := setupTestDB(t)

	c := &models.Contact{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Tags:         []string{"vip", "math"},
		CustomFields: map[string]any{"source": "conference"},
	}
	require.NoError(t, CreateContact(db, "org-1", c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)

	got, err := GetContact(db, "org-1", c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, []string{"vip", "math"}, got.Tags)
	assert.Equal(t, "conference", got.CustomFields["source"])
	assert.True(t, c.UpdatedAt.Equal(got.UpdatedAt))
}

func TestCreateContactKeepsGivenFields(t *testing.T) {
	db := setupTestDB(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &models.Contact{ID: "local-1", Email: "x@example.com", CreatedAt: created, UpdatedAt: created.Add(time.Hour)}
	require.NoError(t, CreateContact(db, "org-1", c))

	got, err := GetContact(db, "org-1", "local-1")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created.Add(time.Hour), got.UpdatedAt)
	assert.Nil(t, got.Tags)
	assert.Nil(t, got.CustomFields)
}

func TestGetContactOtherOrg(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, CreateContact(db, "org-1", &models.Contact{ID: "c1"}))

	got, err := GetContact(db, "org-2", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateContactStampsTime(t *testing.T) {
	db := setupTestDB(t)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Contact{ID: "c1", Email: "a@example.com", CreatedAt: old, UpdatedAt: old}
	require.NoError(t, CreateContact(db, "org-1", c))

	c.Title = "CTO"
	require.NoError(t, UpdateContact(db, "org-1", c))
	assert.True(t, c.UpdatedAt.After(old))

	got, err := GetContact(db, "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "CTO", got.Title)
	assert.True(t, got.UpdatedAt.After(old))

	err = UpdateContact(db, "org-1", &models.Contact{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListContacts(t *testing.T) {
	db := setupTestDB(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, CreateContact(db, "org-1", &models.Contact{ID: "b", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, CreateContact(db, "org-1", &models.Contact{ID: "a", CreatedAt: base}))
	require.NoError(t, CreateContact(db, "org-2", &models.Contact{ID: "z", CreatedAt: base}))

	contacts, err := ListContacts(db, "org-1")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "a", contacts[0].ID)
	assert.Equal(t, "b", contacts[1].ID)
}

func TestApplyContactUpdates(t *testing.T) {
	db := setupTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, CreateContact(db, "org-1", &models.Contact{ID: "c1", FirstName: "Old", CreatedAt: base, UpdatedAt: base}))

	pulled := base.Add(2 * time.Hour)
	err := ApplyContactUpdates(db, "org-1", []*models.Contact{
		{ID: "c1", FirstName: "New", CreatedAt: base, UpdatedAt: pulled},
		{ID: "c2", Email: "fresh@example.com", CreatedAt: pulled, UpdatedAt: pulled},
	})
	require.NoError(t, err)

	got, err := GetContact(db, "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.FirstName)
	assert.Equal(t, pulled, got.UpdatedAt, "sync write-back keeps the given timestamp")

	got, err = GetContact(db, "org-1", "c2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fresh@example.com", got.Email)

	assert.NoError(t, ApplyContactUpdates(db, "org-1", nil))
}
