// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers file decoding, environment overrides, client options and webhook targets
package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.WebhookAddr)
	assert.Empty(t, cfg.Providers)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crmsync", "config.json")

	in := &Config{
		DatabasePath: "/tmp/crm.db",
		LogLevel:     "debug",
		PublicURL:    "https://hooks.example.com",
		Providers: map[models.Provider]ProviderConfig{
			models.ProviderHubSpot: {ClientID: "hs-id", ClientSecret: "hs-secret", Scopes: []string{"crm.objects.contacts.read"}},
		},
	}
	require.NoError(t, Save(path, in))

	out, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/crm.db", out.DatabasePath)
	assert.Equal(t, "debug", out.LogLevel)
	assert.Equal(t, ":8080", out.WebhookAddr, "unset fields keep defaults")
	assert.Equal(t, "hs-id", out.Provider(models.ProviderHubSpot).ClientID)
	assert.Equal(t, []string{"crm.objects.contacts.read"}, out.Provider("HubSpot").Scopes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CRMSYNC_LOG_LEVEL", "warn")
	t.Setenv("CRMSYNC_SALESFORCE_CLIENT_ID", "sf-id")
	t.Setenv("CRMSYNC_SALESFORCE_SCOPES", "api, refresh_token")
	t.Setenv("CRMSYNC_PIPEDRIVE_RPS", "2.5")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "sf-id", cfg.Provider(models.ProviderSalesforce).ClientID)
	assert.Equal(t, []string{"api", "refresh_token"}, cfg.Provider(models.ProviderSalesforce).Scopes)
	assert.Equal(t, 2.5, cfg.Provider(models.ProviderPipedrive).RequestsPerSecond)
	_, ok := cfg.Providers[models.ProviderHubSpot]
	assert.False(t, ok, "providers without settings stay absent")
}

func TestEnvOverrideInvalidRPS(t *testing.T) {
	t.Setenv("CRMSYNC_HUBSPOT_RPS", "fast")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{LogLevel: "info", Providers: map[models.Provider]ProviderConfig{}}

	err := cfg.Validate(models.ProviderSalesforce)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)

	assert.NoError(t, cfg.Validate(models.ProviderPipedrive), "api token providers need no app registration")

	cfg.Providers[models.ProviderHubSpot] = ProviderConfig{
		ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost:8484/callback",
		WebhookUser: "only-user",
	}
	err = cfg.Validate(models.ProviderHubSpot)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)

	err = cfg.Validate("zoho")
	assert.ErrorIs(t, err, crm.ErrUnsupportedProvider)

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate(models.ProviderPipedrive))
}

func TestWebhookConfig(t *testing.T) {
	cfg := &Config{
		PublicURL: "https://hooks.example.com/",
		Providers: map[models.Provider]ProviderConfig{
			models.ProviderPipedrive: {WebhookUser: "u", WebhookPassword: "p"},
		},
	}

	w := cfg.WebhookConfig(models.ProviderPipedrive, "org-1")
	assert.Equal(t, "https://hooks.example.com/webhooks/pipedrive/org-1", w.TargetURL)
	assert.Equal(t, "u", w.AuthUser)

	assert.Empty(t, cfg.WebhookConfig(models.ProviderPipedrive, "").TargetURL)
}

func TestClientOptions(t *testing.T) {
	cfg := &Config{Providers: map[models.Provider]ProviderConfig{
		models.ProviderHubSpot: {BaseURL: "http://127.0.0.1:9999", RequestsPerSecond: 4, WebhookSecret: "shh"},
	}}

	c := crm.NewConfig(models.ProviderHubSpot, cfg.ClientOptions(models.ProviderHubSpot, nil)...)
	assert.Equal(t, "http://127.0.0.1:9999", c.BaseURL)
	assert.Equal(t, 4.0, c.RequestsPerSecond)
	assert.Equal(t, "shh", c.Webhook.Secret)
	assert.NotNil(t, c.Logger, "nil logger keeps the default")
}

func TestCredentials(t *testing.T) {
	cfg := &Config{Providers: map[models.Provider]ProviderConfig{
		models.ProviderPipedrive: {APIKey: "tok"},
	}}
	assert.Equal(t, "tok", cfg.Credentials(models.ProviderPipedrive).APIKey)
	assert.Empty(t, cfg.Credentials(models.ProviderHubSpot).ClientID)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg.LogLevel = "nope"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
