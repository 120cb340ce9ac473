// ABOUTME: Pipedrive API token authentication
// ABOUTME: Tokens are static: rejection is final and there is nothing to refresh or revoke
package pipedrive

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/crm"
)

type tokenAuth struct {
	token string
}

// Authorize adds the api_token query parameter.
func (a tokenAuth) Authorize(req *http.Request) error {
	if a.token == "" {
		return fmt.Errorf("%w: pipedrive api token is empty", crm.ErrAuthentication)
	}
	q := req.URL.Query()
	q.Set("api_token", a.token)
	req.URL.RawQuery = q.Encode()
	return nil
}

func (a tokenAuth) Refresh(ctx context.Context) error {
	return fmt.Errorf("%w: pipedrive api tokens cannot be refreshed", crm.ErrAuthentication)
}

// Authenticate validates the token against /users/me.
func (c *Client) Authenticate(ctx context.Context) error {
	var me currentUser
	if err := c.get(ctx, "/users/me", nil, &me, nil); err != nil {
		return c.wrap("authenticate", err)
	}
	return nil
}

// RefreshToken always fails: API tokens do not expire.
func (c *Client) RefreshToken(ctx context.Context) error {
	return tokenAuth{}.Refresh(ctx)
}

// RevokeToken is not available; tokens are rotated in the Pipedrive UI.
func (c *Client) RevokeToken(ctx context.Context) error {
	return fmt.Errorf("pipedrive api tokens are revoked in the pipedrive settings: %w", crm.ErrNotSupported)
}
