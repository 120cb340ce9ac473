// ABOUTME: Salesforce field mapping tables for Contact and Opportunity
// ABOUTME: Tags and custom fields live in the Tags__c and Custom_Fields__c custom fields
package salesforce

import (
	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

// ContactTable maps canonical contacts to Contact fields. Company comes
// from the related Account and is read-only.
func ContactTable() *mapping.Table {
	return mapping.NewTable(models.ProviderSalesforce, models.ObjectContact,
		mapping.FieldMapping{Canonical: mapping.FieldFirstName, Provider: "FirstName"},
		mapping.FieldMapping{Canonical: mapping.FieldLastName, Provider: "LastName"},
		mapping.FieldMapping{Canonical: mapping.FieldEmail, Provider: "Email"},
		mapping.FieldMapping{Canonical: mapping.FieldPhone, Provider: "Phone", ToCRM: mapping.NormalizePhone},
		mapping.FieldMapping{Canonical: mapping.FieldCompany, Provider: "Account.Name", Direction: models.DirectionFromCRM},
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "Title"},
		mapping.FieldMapping{Canonical: mapping.FieldTags, Provider: "Tags__c",
			ToCRM: mapping.TagsToString, FromCRM: mapping.StringToTags},
		mapping.FieldMapping{Canonical: mapping.FieldCustomFields, Provider: "Custom_Fields__c",
			ToCRM: mapping.CustomFieldsToJSON, FromCRM: mapping.JSONToCustomFields},
	)
}

// DealTable maps canonical deals to Opportunity fields.
func DealTable() *mapping.Table {
	return mapping.NewTable(models.ProviderSalesforce, models.ObjectDeal,
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "Name"},
		mapping.FieldMapping{Canonical: mapping.FieldValue, Provider: "Amount"},
		mapping.FieldMapping{Canonical: mapping.FieldStage, Provider: "StageName"},
		mapping.FieldMapping{Canonical: mapping.FieldExpectedCloseDate, Provider: "CloseDate",
			ToCRM: mapping.DateToString, FromCRM: mapping.StringToDate},
		mapping.FieldMapping{Canonical: mapping.FieldProbability, Provider: "Probability"},
		mapping.FieldMapping{Canonical: mapping.FieldCompanyID, Provider: "AccountId"},
		mapping.FieldMapping{Canonical: mapping.FieldContactID, Provider: "ContactId"},
	)
}
