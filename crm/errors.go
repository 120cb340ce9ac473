// ABOUTME: Error taxonomy shared by every CRM client
// ABOUTME: Sentinels for errors.Is checks plus APIError for non-2xx provider responses
package crm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

var (
	// ErrUnsupportedProvider is returned by the factory for unknown providers.
	ErrUnsupportedProvider = errors.New("unsupported crm provider")

	// ErrAuthentication means credentials were rejected and could not be
	// refreshed. It is fatal for a sync run and never retried.
	ErrAuthentication = errors.New("crm authentication failed")

	// ErrNotFound means the provider has no record with the requested id.
	ErrNotFound = errors.New("crm record not found")

	// ErrInvalidWebhook means a webhook payload could not be normalized.
	ErrInvalidWebhook = errors.New("invalid crm webhook payload")

	// ErrNotSupported means the provider has no equivalent for the operation.
	ErrNotSupported = errors.New("operation not supported by crm provider")
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   models.Provider
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s %s %s: status %d: %s", e.Provider, e.Method, e.Path, e.StatusCode, body)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// Unwrap lets errors.Is match ErrNotFound and ErrAuthentication.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrAuthentication
	}
	return nil
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrAuthentication) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}
