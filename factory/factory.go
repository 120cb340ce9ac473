// ABOUTME: Resolves a provider name plus credentials to a concrete CRM client
// ABOUTME: The registry is a fixed map so unknown providers fail before any I/O
package factory

import (
	"fmt"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/hubspot"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/pipedrive"
	"github.com/harperreed/crmsync/salesforce"
)

// Constructor builds a client for one provider.
type Constructor func(creds models.Credentials, opts ...crm.Option) (crm.Client, error)

var registry = map[models.Provider]Constructor{
	models.ProviderSalesforce: func(creds models.Credentials, opts ...crm.Option) (crm.Client, error) {
		return salesforce.New(creds, opts...)
	},
	models.ProviderHubSpot: func(creds models.Credentials, opts ...crm.Option) (crm.Client, error) {
		return hubspot.New(creds, opts...)
	},
	models.ProviderPipedrive: func(creds models.Credentials, opts ...crm.Option) (crm.Client, error) {
		return pipedrive.New(creds, opts...)
	},
}

// New creates the client for provider. The provider name is matched
// case-insensitively.
func New(provider models.Provider, creds models.Credentials, opts ...crm.Option) (crm.Client, error) {
	p := models.ParseProvider(string(provider))
	ctor, ok := registry[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", crm.ErrUnsupportedProvider, provider)
	}

	client, err := ctor(creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", p, err)
	}
	return client, nil
}

// Supported reports whether New knows provider.
func Supported(provider models.Provider) bool {
	_, ok := registry[models.ParseProvider(string(provider))]
	return ok
}

// UsesOAuth reports whether provider connects through the authorization code flow.
func UsesOAuth(provider models.Provider) bool {
	p := models.ParseProvider(string(provider))
	return p == models.ProviderSalesforce || p == models.ProviderHubSpot
}
