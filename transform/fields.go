// ABOUTME: Custom-field and email sanitization shared by the provider clients
// ABOUTME: Produces deterministic, provider-safe keys and scalar values
package transform

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	emailaddress "github.com/mcnijman/go-emailaddress"
)

const maxFieldKeyLength = 100

// SanitizeFieldKey lowercases key and reduces it to [a-z0-9_].
func SanitizeFieldKey(key string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "f_" + out
	}
	if len(out) > maxFieldKeyLength {
		out = out[:maxFieldKeyLength]
	}
	return out
}

// SanitizeCustomFields returns a copy of fields with sanitized keys, nil and
// blank values dropped, and nested values flattened to JSON strings. When two
// keys sanitize to the same name the lexically first original key wins.
func SanitizeCustomFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(fields))
	for _, k := range keys {
		key := SanitizeFieldKey(k)
		if key == "" {
			continue
		}
		if _, taken := out[key]; taken {
			continue
		}

		value, ok := scalarValue(fields[k])
		if !ok {
			continue
		}
		out[key] = value
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func scalarValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		val = strings.TrimSpace(val)
		return val, val != ""
	case bool, float64, float32, int, int32, int64:
		return val, true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, false
		}
		return string(b), true
	}
}

// NormalizeEmail converts email to lowercase for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a syntactically valid address.
func ValidEmail(email string) bool {
	_, err := emailaddress.Parse(strings.TrimSpace(email))
	return err == nil
}
