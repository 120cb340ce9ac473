package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFieldKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Lead Source", "lead_source"},
		{"  Budget ($) ", "budget"},
		{"2024 Score", "f_2024_score"},
		{"__already_ok__", "already_ok"},
		{"émoji✨", "moji"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeFieldKey(tt.input), "SanitizeFieldKey(%q)", tt.input)
	}
}

func TestSanitizeCustomFields(t *testing.T) {
	in := map[string]any{
		"Lead Source": " Webinar ",
		"lead_source": "ignored duplicate",
		"Score":       float64(42),
		"Empty":       "   ",
		"Missing":     nil,
		"Meta":        map[string]any{"a": 1},
		"!!!":         "dropped",
	}

	out := SanitizeCustomFields(in)
	require.NotNil(t, out)

	assert.Equal(t, "Webinar", out["lead_source"])
	assert.Equal(t, float64(42), out["score"])
	assert.Equal(t, `{"a":1}`, out["meta"])
	assert.NotContains(t, out, "empty")
	assert.NotContains(t, out, "missing")
	assert.Len(t, out, 3)
}

func TestSanitizeCustomFieldsEmpty(t *testing.T) {
	assert.Nil(t, SanitizeCustomFields(nil))
	assert.Nil(t, SanitizeCustomFields(map[string]any{"x": nil}))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("alice@example.com"))
	assert.False(t, ValidEmail("not-an-email"))
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(650) 253-0000", "US")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	got, err = NormalizePhone("+1 650 253 0000", "")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	_, err = NormalizePhone("call me maybe", "US")
	assert.Error(t, err)

	_, err = NormalizePhone("", "US")
	assert.Error(t, err)
}

func TestNormalizePhoneOrKeep(t *testing.T) {
	assert.Equal(t, "+16502530000", NormalizePhoneOrKeep("650.253.0000"))
	assert.Equal(t, "ext 42", NormalizePhoneOrKeep(" ext 42 "))
}
