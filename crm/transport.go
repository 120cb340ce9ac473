// ABOUTME: Shared HTTP transport for provider clients: rate limiting, retries and 401 refresh
// ABOUTME: Every provider request goes through Transport.Do
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/transform"
)

// Authorizer attaches credentials to outgoing requests.
type Authorizer interface {
	Authorize(req *http.Request) error
	// Refresh obtains new credentials after a 401. Implementations that cannot
	// refresh return an error wrapping ErrAuthentication.
	Refresh(ctx context.Context) error
}

// Transport sends JSON requests to one provider API.
type Transport struct {
	provider   models.Provider
	baseURL    func() string
	httpClient *http.Client
	auth       Authorizer
	limiter    *transform.Limiter
	retry      transform.RetryConfig
	logger     *zap.Logger
}

// NewTransport creates a transport. baseURL is evaluated per request because
// an OAuth exchange may move the client to a different instance.
func NewTransport(provider models.Provider, baseURL func() string, auth Authorizer, cfg Config) *Transport {
	return &Transport{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: cfg.HTTPClient,
		auth:       auth,
		limiter:    transform.NewLimiter(cfg.RequestsPerSecond),
		retry:      cfg.Retry,
		logger:     cfg.Logger.With(zap.String("provider", string(provider))),
	}
}

// Logger returns the provider-scoped logger.
func (t *Transport) Logger() *zap.Logger {
	return t.logger
}

// HTTPClient returns the underlying HTTP client.
func (t *Transport) HTTPClient() *http.Client {
	return t.httpClient
}

// Close stops the rate limiter.
func (t *Transport) Close() {
	t.limiter.Stop()
}

// Do sends method path with an optional JSON body and decodes the JSON
// response into out. path may be relative to the base URL or absolute.
// Transient failures are retried; a 401 triggers at most one credential
// refresh per call.
func (t *Transport) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	refreshed := false
	attempt := 0

	return transform.Retry(ctx, t.retry, func(ctx context.Context) error {
		attempt++
		if err := t.limiter.Wait(ctx); err != nil {
			return transform.Permanent(err)
		}

		status, respBody, err := t.send(ctx, method, path, query, payload)
		if err != nil {
			if ctx.Err() != nil {
				return transform.Permanent(ctx.Err())
			}
			if errors.Is(err, ErrAuthentication) {
				return transform.Permanent(err)
			}
			t.logger.Warn("request failed",
				zap.String("method", method), zap.String("path", path),
				zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		if status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			t.logger.Info("access token rejected, refreshing", zap.String("path", path))
			if err := t.auth.Refresh(ctx); err != nil {
				return transform.Permanent(fmt.Errorf("%w: %w", ErrAuthentication, err))
			}
			if err := t.limiter.Wait(ctx); err != nil {
				return transform.Permanent(err)
			}
			status, respBody, err = t.send(ctx, method, path, query, payload)
			if err != nil {
				return err
			}
		}

		if status < 200 || status >= 300 {
			apiErr := &APIError{
				Provider:   t.provider,
				Method:     method,
				Path:       path,
				StatusCode: status,
				Body:       string(respBody),
			}
			if status == http.StatusUnauthorized {
				return transform.Permanent(fmt.Errorf("%w: %w", ErrAuthentication, apiErr))
			}
			if !apiErr.Temporary() {
				return transform.Permanent(apiErr)
			}
			t.logger.Warn("transient provider error",
				zap.String("method", method), zap.String("path", path),
				zap.Int("status", status), zap.Int("attempt", attempt))
			return apiErr
		}

		if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return transform.Permanent(fmt.Errorf("failed to decode %s response: %w", path, err))
		}
		return nil
	})
}

func (t *Transport) send(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	endpoint := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		endpoint = strings.TrimRight(t.baseURL(), "/") + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, transform.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := t.auth.Authorize(req); err != nil {
		return 0, nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.logger.Debug("provider request",
		zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, respBody, nil
}
