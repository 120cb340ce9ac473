package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTagTransforms(t *testing.T) {
	assert.Equal(t, "a,b", TagsToString([]string{"a", " ", "b"}))
	assert.Nil(t, TagsToString([]string{}))
	assert.Equal(t, []string{"a", "b;c"}, StringToTags("a, b;c,,"))
	assert.Equal(t, []string{"a;b", "c"}, StringToTags(TagsToString([]string{"a;b", "c"})))
	assert.Equal(t, []string{"x"}, StringToTags([]any{"x", 3}))
	assert.Nil(t, StringToTags(" , "))
}

func TestCustomFieldTransforms(t *testing.T) {
	out := CustomFieldsToJSON(map[string]any{"Lead Source": "ads"})
	assert.Equal(t, `{"lead_source":"ads"}`, out)

	assert.Equal(t, map[string]any{"lead_source": "ads"}, JSONToCustomFields(`{"lead_source":"ads"}`))
	assert.Nil(t, JSONToCustomFields("not json"))
	assert.Nil(t, CustomFieldsToJSON("not a map"))
}

func TestDateTransforms(t *testing.T) {
	ts := time.Date(2026, 5, 17, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-05-17", DateToString(ts))
	assert.Equal(t, "2026-05-17", DateToString(&ts))
	assert.Nil(t, DateToString(time.Time{}))

	assert.Equal(t, time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC), StringToDate("2026-05-17"))
	assert.Nil(t, StringToDate("17/05/2026"))
}

func TestTimestampTransforms(t *testing.T) {
	ts := time.Date(2026, 5, 17, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-05-17T22:30:00Z", TimeToRFC3339(ts))
	assert.Equal(t, ts, RFC3339ToTime("2026-05-17T22:30:00Z"))
	assert.Equal(t, ts, RFC3339ToTime("2026-05-17T22:30:00.000+0000"))

	ms := TimeToEpochMillis(ts)
	assert.Equal(t, "1779057000000", ms)
	assert.Equal(t, ts, EpochMillisToTime(ms))
	assert.Equal(t, ts, EpochMillisToTime(float64(1779057000000)))
	assert.Equal(t, ts, EpochMillisToTime("2026-05-17T22:30:00Z"))
	assert.Nil(t, EpochMillisToTime("soon"))
}

func TestLabelledValueTransforms(t *testing.T) {
	wrapped := ToLabelledValues("ada@example.com")
	assert.Equal(t, []map[string]any{{"value": "ada@example.com", "primary": true, "label": "work"}}, wrapped)
	assert.Nil(t, ToLabelledValues(""))

	list := []any{
		map[string]any{"value": "home@example.com", "primary": false},
		map[string]any{"value": "work@example.com", "primary": true},
	}
	assert.Equal(t, "work@example.com", FromLabelledValues(list))
	assert.Equal(t, "home@example.com", FromLabelledValues([]any{map[string]any{"value": "home@example.com"}}))
	assert.Nil(t, FromLabelledValues([]any{map[string]any{"value": ""}}))
}

func TestNumberTransforms(t *testing.T) {
	assert.Equal(t, "1500.25", NumberToString(1500.25))
	assert.Equal(t, "3", NumberToString(3))
	assert.Equal(t, 1500.25, StringToNumber("1500.25"))
	assert.Nil(t, StringToNumber("lots"))
}

func TestNormalizePhoneTransform(t *testing.T) {
	assert.Equal(t, "+16502530000", NormalizePhone("(650) 253-0000"))
	assert.Equal(t, "n/a", NormalizePhone("n/a"))
	assert.Nil(t, NormalizePhone(42))
}
