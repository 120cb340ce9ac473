// ABOUTME: Provider-agnostic CRM client contract and its construction options
// ABOUTME: Every provider package implements Client; OAuth and webhook checks are optional capabilities
package crm

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/transform"
)

// ListOptions page through a provider collection.
type ListOptions struct {
	// Since restricts the listing to records modified after it.
	Since *time.Time
	// Cursor is the opaque NextCursor of the previous page.
	Cursor string
	Limit  int
}

// ContactPage is one page of contacts.
type ContactPage struct {
	Contacts   []*models.Contact
	NextCursor string
}

// DealPage is one page of deals.
type DealPage struct {
	Deals      []*models.Deal
	NextCursor string
}

// WebhookConfig describes the subscriptions SetupWebhooks should create.
type WebhookConfig struct {
	TargetURL string
	Events    []string
	Secret    string

	// HubSpot subscriptions belong to a developer app.
	AppID           string
	DeveloperAPIKey string

	// Pipedrive calls the target URL with basic auth.
	AuthUser     string
	AuthPassword string
}

// Client is the contract every CRM provider implements.
type Client interface {
	Provider() models.Provider

	Authenticate(ctx context.Context) error
	RefreshToken(ctx context.Context) error
	RevokeToken(ctx context.Context) error
	Credentials() models.Credentials
	ValidateConnection(ctx context.Context) models.ConnectionStatus

	CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	UpdateContact(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	DeleteContact(ctx context.Context, id string) error
	ListContacts(ctx context.Context, opts ListOptions) (*ContactPage, error)
	SearchContacts(ctx context.Context, query string) ([]*models.Contact, error)

	CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error)
	UpdateDeal(ctx context.Context, id string, deal *models.Deal) (*models.Deal, error)
	GetDeal(ctx context.Context, id string) (*models.Deal, error)
	DeleteDeal(ctx context.Context, id string) error
	ListDeals(ctx context.Context, opts ListOptions) (*DealPage, error)

	CreateActivity(ctx context.Context, activity *models.Activity) (*models.Activity, error)
	CreateNote(ctx context.Context, note *models.Note) (*models.Note, error)

	SetupWebhooks(ctx context.Context, cfg WebhookConfig) ([]models.WebhookSubscription, error)
	HandleWebhook(ctx context.Context, payload []byte) (*models.CRMWebhookEvent, error)

	// Close stops the client's rate limiter. Pending calls fail.
	Close() error
}

// OAuthClient is implemented by providers that use the authorization code flow.
type OAuthClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) error
}

// WebhookVerifier is implemented by providers that sign or authenticate
// webhook deliveries.
type WebhookVerifier interface {
	VerifyWebhook(headers http.Header, method, url string, body []byte) error
}

// Config is shared by every provider constructor.
type Config struct {
	HTTPClient        *http.Client
	BaseURL           string
	AuthURL           string
	Logger            *zap.Logger
	Retry             transform.RetryConfig
	RequestsPerSecond float64
	RedirectURI       string
	Scopes            []string
	Now               func() time.Time

	// Webhook holds the shared secrets used to verify incoming deliveries.
	Webhook WebhookConfig

	// OnCredentialsRefreshed is called after every successful token refresh
	// or code exchange so the owner can persist the new credentials.
	OnCredentialsRefreshed func(models.Credentials)
}

// Option customizes a Config.
type Option func(*Config)

// NewConfig applies opts over the provider defaults.
func NewConfig(provider models.Provider, opts ...Option) Config {
	cfg := Config{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		Logger:            zap.NewNop(),
		Retry:             transform.DefaultRetryConfig(),
		RequestsPerSecond: LimitsFor(provider).RequestsPerSecond,
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithHTTPClient(c *http.Client) Option {
	return func(cfg *Config) { cfg.HTTPClient = c }
}

// WithBaseURL overrides the provider API root, e.g. to point at a test server.
func WithBaseURL(u string) Option {
	return func(cfg *Config) { cfg.BaseURL = u }
}

// WithAuthURL overrides the OAuth authorization server root.
func WithAuthURL(u string) Option {
	return func(cfg *Config) { cfg.AuthURL = u }
}

func WithLogger(l *zap.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

func WithRetry(r transform.RetryConfig) Option {
	return func(cfg *Config) { cfg.Retry = r }
}

// WithRateLimit overrides the provider's published request rate.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(cfg *Config) { cfg.RequestsPerSecond = requestsPerSecond }
}

func WithRedirectURI(u string) Option {
	return func(cfg *Config) { cfg.RedirectURI = u }
}

func WithScopes(scopes ...string) Option {
	return func(cfg *Config) { cfg.Scopes = scopes }
}

func WithClock(now func() time.Time) Option {
	return func(cfg *Config) { cfg.Now = now }
}

// WithWebhookConfig sets the secrets webhook verification checks against.
func WithWebhookConfig(w WebhookConfig) Option {
	return func(cfg *Config) { cfg.Webhook = w }
}

func WithRefreshHook(fn func(models.Credentials)) Option {
	return func(cfg *Config) { cfg.OnCredentialsRefreshed = fn }
}
