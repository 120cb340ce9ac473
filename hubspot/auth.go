// ABOUTME: HubSpot OAuth2 endpoints and token lifecycle
// ABOUTME: expires_in from the token endpoint is authoritative; revoke is a no-op
package hubspot

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.hubapi.com"
	defaultAuthURL = "https://app.hubspot.com"
)

// DefaultScopes are requested when the connection does not configure any.
var DefaultScopes = []string{
	"crm.objects.contacts.read",
	"crm.objects.contacts.write",
	"crm.objects.deals.read",
	"crm.objects.deals.write",
	"oauth",
}

func endpoint(authURL, baseURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  strings.TrimRight(authURL, "/") + "/oauth/authorize",
		TokenURL: strings.TrimRight(baseURL, "/") + "/oauth/v1/token",
	}
}

// Authenticate makes sure a usable access token exists and that the portal
// accepts it.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.transport.Do(ctx, "GET", "/account-info/v3/details", nil, nil, nil); err != nil {
		return c.wrap("authenticate", err)
	}
	return nil
}

// RefreshToken exchanges the refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.session.Refresh(ctx)
}

// RevokeToken is a no-op. HubSpot access tokens expire on their own and
// refresh tokens are removed by uninstalling the app from the portal.
func (c *Client) RevokeToken(ctx context.Context) error {
	c.logger.Info("hubspot has no token revocation, uninstall the app in the portal to revoke access")
	return nil
}

// AuthorizationURL returns the HubSpot consent page URL.
func (c *Client) AuthorizationURL(state string) string {
	return c.session.AuthorizationURL(state)
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	return c.session.ExchangeCode(ctx, code)
}
