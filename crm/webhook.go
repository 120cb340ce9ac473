// ABOUTME: Helpers shared by provider webhook parsers and verifiers
// ABOUTME: Batch splitting, event ids, HMAC signatures and basic-auth checks
package crm

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SplitWebhookBatch returns the individual events of a webhook body. JSON
// arrays are split into their elements; any other JSON value is one event.
func SplitWebhookBatch(body []byte) ([][]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidWebhook)
	}

	if body[0] != '[' {
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: malformed json", ErrInvalidWebhook)
		}
		return [][]byte{body}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidWebhook)
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}

// NewEventID returns a sortable id for events the provider did not number.
func NewEventID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String()
}

// SignHMACHex returns the hex HMAC-SHA256 of parts joined in order.
func SignHMACHex(secret string, parts ...[]byte) string {
	return hex.EncodeToString(signHMAC(secret, parts...))
}

// SignHMACBase64 returns the base64 HMAC-SHA256 of parts joined in order.
func SignHMACBase64(secret string, parts ...[]byte) string {
	return base64.StdEncoding.EncodeToString(signHMAC(secret, parts...))
}

func signHMAC(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// EqualSignature compares two signatures in constant time.
func EqualSignature(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(got)))
}

// VerifyBasicAuth checks the request's basic credentials.
func VerifyBasicAuth(headers http.Header, user, password string) error {
	req := &http.Request{Header: headers}
	gotUser, gotPassword, ok := req.BasicAuth()
	if !ok {
		return fmt.Errorf("%w: missing basic auth", ErrInvalidWebhook)
	}
	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(gotPassword), []byte(password)) == 1
	if !userOK || !passOK {
		return fmt.Errorf("%w: basic auth mismatch", ErrInvalidWebhook)
	}
	return nil
}
