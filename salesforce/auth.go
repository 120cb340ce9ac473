// ABOUTME: Salesforce OAuth2 web server flow, token refresh and revocation
// ABOUTME: Access tokens get a fixed two hour lifetime; the token response names the API instance
package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/crmsync/crm"
)

const (
	defaultLoginURL = "https://login.salesforce.com"

	// tokenTTL is applied from issuance; Salesforce does not return expires_in.
	tokenTTL = 2 * time.Hour
)

// DefaultScopes are requested when the connection does not configure any.
var DefaultScopes = []string{"api", "refresh_token"}

func endpoint(loginURL string) oauth2.Endpoint {
	base := strings.TrimRight(loginURL, "/")
	return oauth2.Endpoint{
		AuthURL:  base + "/services/oauth2/authorize",
		TokenURL: base + "/services/oauth2/token",
	}
}

// Authenticate makes sure a usable token exists and the org accepts it.
func (c *Client) Authenticate(ctx context.Context) error {
	var info userInfo
	if err := c.transport.Do(ctx, "GET", "/services/oauth2/userinfo", nil, nil, &info); err != nil {
		return c.wrap("authenticate", err)
	}
	return nil
}

// RefreshToken exchanges the refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.session.Refresh(ctx)
}

// RevokeToken revokes the refresh token (which also invalidates its access
// tokens) and clears the session.
func (c *Client) RevokeToken(ctx context.Context) error {
	creds := c.session.Credentials()
	token := creds.RefreshToken
	if token == "" {
		token = creds.AccessToken
	}
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/services/oauth2/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.transport.HTTPClient().Do(req)
	if err != nil {
		return c.wrap("revoke token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return c.wrap("revoke token", &crm.APIError{
			Provider:   c.Provider(),
			Method:     http.MethodPost,
			Path:       "/services/oauth2/revoke",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		})
	}

	c.session.Clear()
	return nil
}

// AuthorizationURL returns the Salesforce consent page URL.
func (c *Client) AuthorizationURL(state string) string {
	return c.session.AuthorizationURL(state)
}

// ExchangeCode trades an authorization code for tokens and the instance URL.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	return c.session.ExchangeCode(ctx, code)
}
