// ABOUTME: Built-in pure value transforms used by the provider mapping tables
// ABOUTME: Every transform is total and returns nil for input it cannot convert
package mapping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/crmsync/transform"
)

const dateLayout = "2006-01-02"

// TagsToString joins a tag list with commas.
func TagsToString(v any) any {
	tags := toStrings(v)
	if len(tags) == 0 {
		return nil
	}
	return strings.Join(tags, ",")
}

// StringToTags splits a comma separated string into trimmed tags. It is the
// inverse of TagsToString, so commas are the only separator.
func StringToTags(v any) any {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		return toStrings(val)
	case string:
		var tags []string
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				tags = append(tags, p)
			}
		}
		if len(tags) == 0 {
			return nil
		}
		return tags
	}
	return nil
}

func toStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		var out []string
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		if s, ok := StringToTags(val).([]string); ok {
			return s
		}
	}
	return nil
}

// CustomFieldsToJSON sanitizes custom fields and serializes them to a JSON string.
func CustomFieldsToJSON(v any) any {
	fields, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	fields = transform.SanitizeCustomFields(fields)
	if len(fields) == 0 {
		return nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return string(b)
}

// JSONToCustomFields parses a JSON object string. Maps pass through.
func JSONToCustomFields(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(val), &out); err != nil || len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	}
	return time.Time{}, false
}

// DateToString formats a time as YYYY-MM-DD.
func DateToString(v any) any {
	t, ok := asTime(v)
	if !ok {
		return nil
	}
	return t.UTC().Format(dateLayout)
}

// StringToDate parses YYYY-MM-DD or RFC3339 into a UTC time.
func StringToDate(v any) any {
	if t, ok := asTime(v); ok {
		return t
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return nil
}

// TimeToRFC3339 formats a time as RFC3339 in UTC.
func TimeToRFC3339(v any) any {
	t, ok := asTime(v)
	if !ok {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// RFC3339ToTime parses RFC3339 (with or without fractional seconds) and the
// Salesforce +0000 offset form.
func RFC3339ToTime(v any) any {
	if t, ok := asTime(v); ok {
		return t
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil
	}
	return t
}

// ParseTimestamp accepts the timestamp layouts the supported CRMs emit.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		"2006-01-02 15:04:05",
		dateLayout,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// TimeToEpochMillis formats a time as milliseconds since the epoch.
func TimeToEpochMillis(v any) any {
	t, ok := asTime(v)
	if !ok {
		return nil
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// EpochMillisToTime parses epoch milliseconds given as string or number.
// ISO timestamps are accepted too since HubSpot returns both.
func EpochMillisToTime(v any) any {
	switch val := v.(type) {
	case float64:
		return time.UnixMilli(int64(val)).UTC()
	case int64:
		return time.UnixMilli(val).UTC()
	case string:
		t, err := ParseTimestamp(val)
		if err != nil {
			return nil
		}
		return t
	}
	if t, ok := asTime(v); ok {
		return t
	}
	return nil
}

// ToLabelledValues wraps a scalar in Pipedrive's [{value, primary, label}] list.
func ToLabelledValues(v any) any {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return []map[string]any{{"value": strings.TrimSpace(s), "primary": true, "label": "work"}}
}

// FromLabelledValues picks the primary value (or the first one) out of a
// Pipedrive labelled-value list.
func FromLabelledValues(v any) any {
	var items []map[string]any
	switch val := v.(type) {
	case string:
		return val
	case []map[string]any:
		items = val
	case []any:
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				items = append(items, m)
			}
		}
	default:
		return nil
	}

	var first string
	for _, item := range items {
		s, _ := item["value"].(string)
		if s == "" {
			continue
		}
		if primary, _ := item["primary"].(bool); primary {
			return s
		}
		if first == "" {
			first = s
		}
	}
	if first == "" {
		return nil
	}
	return first
}

// NumberToString formats a number without trailing zeros.
func NumberToString(v any) any {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case *float64:
		if val == nil {
			return nil
		}
		return strconv.FormatFloat(*val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return val
	}
	return nil
}

// StringToNumber parses a decimal string. Numbers pass through as float64.
func StringToNumber(v any) any {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		return f
	}
	return nil
}

// NormalizePhone converts a phone string to E.164, keeping unparseable input as is.
func NormalizePhone(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return transform.NormalizePhoneOrKeep(s)
}

// SortedKeys is a helper for deterministic iteration over native payloads.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
