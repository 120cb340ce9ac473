// ABOUTME: HubSpot property mapping tables for contacts and deals
// ABOUTME: HubSpot stores every property as a string, so numbers and dates are stringified
package hubspot

import (
	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

// ContactTable maps canonical contacts to HubSpot contact properties.
func ContactTable() *mapping.Table {
	return mapping.NewTable(models.ProviderHubSpot, models.ObjectContact,
		mapping.FieldMapping{Canonical: mapping.FieldFirstName, Provider: "firstname"},
		mapping.FieldMapping{Canonical: mapping.FieldLastName, Provider: "lastname"},
		mapping.FieldMapping{Canonical: mapping.FieldEmail, Provider: "email"},
		mapping.FieldMapping{Canonical: mapping.FieldPhone, Provider: "phone", ToCRM: mapping.NormalizePhone},
		mapping.FieldMapping{Canonical: mapping.FieldCompany, Provider: "company"},
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "jobtitle"},
		mapping.FieldMapping{Canonical: mapping.FieldTags, Provider: "tags",
			ToCRM: mapping.TagsToString, FromCRM: mapping.StringToTags},
		mapping.FieldMapping{Canonical: mapping.FieldCustomFields, Provider: "custom_fields",
			ToCRM: mapping.CustomFieldsToJSON, FromCRM: mapping.JSONToCustomFields},
	)
}

// DealTable maps canonical deals to HubSpot deal properties. The stage
// probability is calculated by HubSpot and only read.
func DealTable() *mapping.Table {
	return mapping.NewTable(models.ProviderHubSpot, models.ObjectDeal,
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "dealname"},
		mapping.FieldMapping{Canonical: mapping.FieldValue, Provider: "amount",
			ToCRM: mapping.NumberToString, FromCRM: mapping.StringToNumber},
		mapping.FieldMapping{Canonical: mapping.FieldCurrency, Provider: "deal_currency_code"},
		mapping.FieldMapping{Canonical: mapping.FieldStage, Provider: "dealstage"},
		mapping.FieldMapping{Canonical: mapping.FieldPipeline, Provider: "pipeline"},
		mapping.FieldMapping{Canonical: mapping.FieldExpectedCloseDate, Provider: "closedate",
			ToCRM: mapping.TimeToEpochMillis, FromCRM: mapping.EpochMillisToTime},
		mapping.FieldMapping{Canonical: mapping.FieldProbability, Provider: "hs_deal_stage_probability",
			Direction: models.DirectionFromCRM, FromCRM: mapping.StringToNumber},
	)
}
