package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestMatchContactByEmail(t *testing.T) {
	existing := []*models.Contact{
		{ID: "l1", FirstName: "Alice", Email: "alice@example.com"},
		{ID: "l2", FirstName: "Bob", Email: "bob@example.com"},
	}

	matcher := NewContactMatcher(existing)

	match, found := matcher.FindMatch("  Alice@Example.com", "")
	require.True(t, found)
	assert.Equal(t, "l1", match.ID)

	_, found = matcher.FindMatch("charlie@example.com", "")
	assert.False(t, found)
}

func TestMatchContactByPhone(t *testing.T) {
	matcher := NewContactMatcher([]*models.Contact{
		{ID: "l1", Phone: "(650) 253-0000"},
	})

	match, found := matcher.FindMatch("", "+1 650 253 0000")
	require.True(t, found)
	assert.Equal(t, "l1", match.ID)

	match, found = matcher.FindMatch("nobody@example.com", "650.253.0000")
	require.True(t, found)
	assert.Equal(t, "l1", match.ID)
}

func TestMatcherFirstContactKeepsKey(t *testing.T) {
	matcher := NewContactMatcher([]*models.Contact{
		{ID: "l1", Email: "shared@example.com"},
		{ID: "l2", Email: "shared@example.com"},
	})

	match, _ := matcher.FindMatch("shared@example.com", "")
	assert.Equal(t, "l1", match.ID)
}

func TestMatcherRemove(t *testing.T) {
	c := &models.Contact{ID: "l1", Email: "alice@example.com", Phone: "+16502530000"}
	matcher := NewContactMatcher([]*models.Contact{c})

	matcher.Remove(c)

	_, found := matcher.FindMatch("alice@example.com", "+16502530000")
	assert.False(t, found)
}
