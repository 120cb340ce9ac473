// ABOUTME: Phone number normalization to E.164 before records leave the application
// ABOUTME: Unparseable numbers are kept as entered so mapping stays total
package transform

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country code.
const DefaultPhoneRegion = "US"

// NormalizePhone parses raw and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty phone number")
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizePhoneOrKeep returns the E.164 form when raw parses, otherwise raw trimmed.
func NormalizePhoneOrKeep(raw string) string {
	normalized, err := NormalizePhone(raw, DefaultPhoneRegion)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return normalized
}
