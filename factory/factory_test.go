package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

func TestNewResolvesEveryProvider(t *testing.T) {
	creds := models.Credentials{AccessToken: "token", APIKey: "key", InstanceURL: "https://example.my.salesforce.com"}

	for _, p := range models.Providers() {
		t.Run(string(p), func(t *testing.T) {
			client, err := New(p, creds, crm.WithRateLimit(0))
			require.NoError(t, err)
			defer client.Close()
			assert.Equal(t, p, client.Provider())
		})
	}
}

func TestNewNormalizesName(t *testing.T) {
	client, err := New("HubSpot", models.Credentials{AccessToken: "token"})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, models.ProviderHubSpot, client.Provider())
	_, ok := client.(crm.OAuthClient)
	assert.True(t, ok)
}

func TestNewUnsupportedProvider(t *testing.T) {
	client, err := New("zoho", models.Credentials{AccessToken: "token"})
	assert.ErrorIs(t, err, crm.ErrUnsupportedProvider)
	assert.Nil(t, client)
	assert.False(t, Supported("zoho"))
}

func TestNewPropagatesCredentialErrors(t *testing.T) {
	_, err := New(models.ProviderPipedrive, models.Credentials{})
	assert.ErrorIs(t, err, crm.ErrAuthentication)
	assert.NotErrorIs(t, err, crm.ErrUnsupportedProvider)
}

func TestUsesOAuth(t *testing.T) {
	assert.True(t, UsesOAuth(models.ProviderSalesforce))
	assert.True(t, UsesOAuth(models.ProviderHubSpot))
	assert.False(t, UsesOAuth(models.ProviderPipedrive))
}
