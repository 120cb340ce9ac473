// ABOUTME: Conversion between canonical model structs and flat Fields maps
// ABOUTME: Zero values are omitted so a Fields map only carries what was set
package mapping

import (
	"time"

	"github.com/harperreed/crmsync/models"
)

// Canonical contact attribute names.
const (
	FieldFirstName    = "firstName"
	FieldLastName     = "lastName"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldCompany      = "company"
	FieldTitle        = "title"
	FieldTags         = "tags"
	FieldCustomFields = "customFields"
)

// Canonical deal attribute names. FieldTitle is shared with contacts.
const (
	FieldValue             = "value"
	FieldCurrency          = "currency"
	FieldStage             = "stage"
	FieldPipeline          = "pipeline"
	FieldContactID         = "contactId"
	FieldCompanyID         = "companyId"
	FieldExpectedCloseDate = "expectedCloseDate"
	FieldProbability       = "probability"
)

// ContactFields flattens a contact.
func ContactFields(c *models.Contact) Fields {
	f := Fields{}
	set(f, FieldFirstName, c.FirstName)
	set(f, FieldLastName, c.LastName)
	set(f, FieldEmail, c.Email)
	set(f, FieldPhone, c.Phone)
	set(f, FieldCompany, c.Company)
	set(f, FieldTitle, c.Title)
	if len(c.Tags) > 0 {
		f[FieldTags] = c.Tags
	}
	if len(c.CustomFields) > 0 {
		f[FieldCustomFields] = c.CustomFields
	}
	return f
}

// ApplyContact writes f onto c. Keys absent from f leave c untouched.
func ApplyContact(c *models.Contact, f Fields) {
	getString(f, FieldFirstName, &c.FirstName)
	getString(f, FieldLastName, &c.LastName)
	getString(f, FieldEmail, &c.Email)
	getString(f, FieldPhone, &c.Phone)
	getString(f, FieldCompany, &c.Company)
	getString(f, FieldTitle, &c.Title)
	if tags, ok := f[FieldTags].([]string); ok && len(tags) > 0 {
		c.Tags = tags
	}
	if custom, ok := f[FieldCustomFields].(map[string]any); ok && len(custom) > 0 {
		c.CustomFields = custom
	}
}

// ContactFromFields builds a new contact from translated fields plus the
// provider reference appended outside the mapping table.
func ContactFromFields(f Fields, ref *models.ExternalRef) *models.Contact {
	c := &models.Contact{External: ref}
	ApplyContact(c, f)
	if ref != nil {
		c.CreatedAt = ref.CreatedAt
		c.UpdatedAt = ref.UpdatedAt
	}
	return c
}

// DealFields flattens a deal.
func DealFields(d *models.Deal) Fields {
	f := Fields{}
	set(f, FieldTitle, d.Title)
	if d.Value != 0 {
		f[FieldValue] = d.Value
	}
	set(f, FieldCurrency, d.Currency)
	set(f, FieldStage, d.Stage)
	set(f, FieldPipeline, d.Pipeline)
	set(f, FieldContactID, d.ContactID)
	set(f, FieldCompanyID, d.CompanyID)
	if d.ExpectedCloseDate != nil && !d.ExpectedCloseDate.IsZero() {
		f[FieldExpectedCloseDate] = *d.ExpectedCloseDate
	}
	if d.Probability != nil {
		f[FieldProbability] = *d.Probability
	}
	if len(d.CustomFields) > 0 {
		f[FieldCustomFields] = d.CustomFields
	}
	return f
}

// DealFromFields builds a deal from translated fields.
func DealFromFields(f Fields, ref *models.ExternalRef) *models.Deal {
	d := &models.Deal{External: ref}
	getString(f, FieldTitle, &d.Title)
	getString(f, FieldCurrency, &d.Currency)
	getString(f, FieldStage, &d.Stage)
	getString(f, FieldPipeline, &d.Pipeline)
	getString(f, FieldContactID, &d.ContactID)
	getString(f, FieldCompanyID, &d.CompanyID)
	if v, ok := f[FieldValue].(float64); ok {
		d.Value = v
	}
	if t, ok := f[FieldExpectedCloseDate].(time.Time); ok {
		d.ExpectedCloseDate = &t
	}
	if p, ok := f[FieldProbability].(float64); ok {
		d.Probability = &p
	}
	if custom, ok := f[FieldCustomFields].(map[string]any); ok && len(custom) > 0 {
		d.CustomFields = custom
	}
	if ref != nil {
		d.CreatedAt = ref.CreatedAt
		d.UpdatedAt = ref.UpdatedAt
	}
	return d
}

// NewExternalRef builds the provider metadata appended to translated records.
func NewExternalRef(provider models.Provider, id string, created, updated time.Time) *models.ExternalRef {
	return &models.ExternalRef{
		Provider:  provider,
		IDField:   provider.IDField(),
		ID:        id,
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func set(f Fields, key, value string) {
	if value != "" {
		f[key] = value
	}
}

func getString(f Fields, key string, dst *string) {
	if s, ok := f[key].(string); ok && s != "" {
		*dst = s
	}
}
