// ABOUTME: OAuth2 session shared by the Salesforce and HubSpot clients
// ABOUTME: Builds authorize URLs, exchanges codes and refreshes tokens before or on expiry
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/crmsync/models"
)

// RefreshSkew is how long before expiry a token is refreshed proactively.
const RefreshSkew = 60 * time.Second

// OAuthSession owns one connection's OAuth credentials. It is safe for
// concurrent use; refreshes are serialized.
type OAuthSession struct {
	mu         sync.Mutex
	provider   models.Provider
	config     *oauth2.Config
	creds      models.Credentials
	httpClient *http.Client
	tokenTTL   time.Duration
	now        func() time.Time
	onRefresh  func(models.Credentials)
	logger     *zap.Logger
}

// NewOAuthSession creates a session. A non-zero tokenTTL overrides the
// provider's expires_in, for providers that do not report one.
func NewOAuthSession(provider models.Provider, creds models.Credentials, endpoint oauth2.Endpoint, tokenTTL time.Duration, cfg Config) *OAuthSession {
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	redirect := cfg.RedirectURI
	if redirect == "" {
		redirect = creds.RedirectURI
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = creds.Scopes
	}

	return &OAuthSession{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		creds:      creds,
		httpClient: cfg.HTTPClient,
		tokenTTL:   tokenTTL,
		now:        cfg.Now,
		onRefresh:  cfg.OnCredentialsRefreshed,
		logger:     cfg.Logger.With(zap.String("provider", string(provider))),
	}
}

// AuthorizationURL returns the consent page URL for state.
func (s *OAuthSession) AuthorizationURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for tokens.
func (s *OAuthSession) ExchangeCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.config.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return s.tokenError("exchange authorization code", err)
	}
	s.apply(tok)
	return nil
}

// Authorize sets the bearer header, refreshing first when the token is
// about to expire.
func (s *OAuthSession) Authorize(req *http.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.AccessToken == "" && s.creds.RefreshToken == "" {
		return fmt.Errorf("%w: no access token", ErrAuthentication)
	}
	if s.creds.AccessToken == "" || s.creds.Expired(s.now(), RefreshSkew) {
		if err := s.refreshLocked(req.Context()); err != nil {
			return err
		}
	}

	req.Header.Set("Authorization", "Bearer "+s.creds.AccessToken)
	return nil
}

// Refresh forces a token refresh.
func (s *OAuthSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *OAuthSession) refreshLocked(ctx context.Context) error {
	if s.creds.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token", ErrAuthentication)
	}

	src := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: s.creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return s.tokenError("refresh token", err)
	}

	s.apply(tok)
	s.logger.Info("access token refreshed")
	return nil
}

func (s *OAuthSession) apply(tok *oauth2.Token) {
	s.creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.creds.RefreshToken = tok.RefreshToken
	}

	switch {
	case s.tokenTTL > 0:
		exp := s.now().Add(s.tokenTTL)
		s.creds.ExpiresAt = &exp
	case !tok.Expiry.IsZero():
		exp := tok.Expiry
		s.creds.ExpiresAt = &exp
	default:
		s.creds.ExpiresAt = nil
	}

	if instance, ok := tok.Extra("instance_url").(string); ok && instance != "" {
		s.creds.InstanceURL = instance
	}

	if s.onRefresh != nil {
		s.onRefresh(s.copyCredentials())
	}
}

// tokenError maps rejected grants to ErrAuthentication. Anything else, such
// as a network failure reaching the token endpoint, stays retryable.
func (s *OAuthSession) tokenError(action string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
			return fmt.Errorf("%w: failed to %s: %w", ErrAuthentication, action, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func (s *OAuthSession) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Credentials returns a copy of the current credentials.
func (s *OAuthSession) Credentials() models.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyCredentials()
}

func (s *OAuthSession) copyCredentials() models.Credentials {
	c := s.creds
	if s.creds.ExpiresAt != nil {
		exp := *s.creds.ExpiresAt
		c.ExpiresAt = &exp
	}
	c.Scopes = append([]string(nil), s.creds.Scopes...)
	return c
}

// InstanceURL is the API host reported by the token endpoint, if any.
func (s *OAuthSession) InstanceURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.InstanceURL
}

// AccessToken returns the current access token without refreshing.
func (s *OAuthSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.AccessToken
}

// Clear drops the tokens after a revoke.
func (s *OAuthSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = ""
	s.creds.RefreshToken = ""
	s.creds.ExpiresAt = nil
}
