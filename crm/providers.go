// ABOUTME: Published per-provider request rates and batch sizes
// ABOUTME: Clients and the sync engine read defaults from here
package crm

import "github.com/harperreed/crmsync/models"

// Limits are the provider defaults for throughput and paging.
type Limits struct {
	RequestsPerSecond float64
	BatchSize         int
	PageSize          int
}

var providerLimits = map[models.Provider]Limits{
	models.ProviderSalesforce: {RequestsPerSecond: 100, BatchSize: 200, PageSize: 200},
	models.ProviderHubSpot:    {RequestsPerSecond: 100, BatchSize: 100, PageSize: 100},
	models.ProviderPipedrive:  {RequestsPerSecond: 20, BatchSize: 100, PageSize: 100},
}

// LimitsFor returns the defaults for p. Unknown providers get conservative values.
func LimitsFor(p models.Provider) Limits {
	if l, ok := providerLimits[p]; ok {
		return l
	}
	return Limits{RequestsPerSecond: 10, BatchSize: 50, PageSize: 50}
}
