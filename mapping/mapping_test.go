package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func testContactTable() *Table {
	return NewTable(models.ProviderSalesforce, models.ObjectContact,
		FieldMapping{Canonical: FieldFirstName, Provider: "FirstName"},
		FieldMapping{Canonical: FieldLastName, Provider: "LastName"},
		FieldMapping{Canonical: FieldEmail, Provider: "Email"},
		FieldMapping{Canonical: FieldCompany, Provider: "Account.Name", Direction: models.DirectionFromCRM},
		FieldMapping{Canonical: FieldTags, Provider: "Tags__c", ToCRM: TagsToString, FromCRM: StringToTags},
		FieldMapping{Canonical: FieldCustomFields, Provider: "Custom_Fields__c", ToCRM: CustomFieldsToJSON, FromCRM: JSONToCustomFields},
	)
}

// roundTrip sends native attributes through a JSON encode/decode, the way
// they travel over the wire, before translating them back.
func roundTrip(t *testing.T, table *Table, f Fields) Fields {
	t.Helper()
	native := table.ToCRM(f)

	body, err := json.Marshal(native)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	return table.FromCRM(decoded)
}

func TestContactRoundTrip(t *testing.T) {
	table := testContactTable()
	contact := &models.Contact{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Tags:         []string{"vip", "beta"},
		CustomFields: map[string]any{"lead_source": "webinar", "tier": "gold"},
	}

	back := ContactFromFields(roundTrip(t, table, ContactFields(contact)), nil)

	assert.Equal(t, contact.FirstName, back.FirstName)
	assert.Equal(t, contact.LastName, back.LastName)
	assert.Equal(t, contact.Email, back.Email)
	assert.Equal(t, contact.Tags, back.Tags)
	assert.Equal(t, contact.CustomFields, back.CustomFields)
}

func TestToCRMSkipsEmptyAndFromOnly(t *testing.T) {
	table := testContactTable()
	native := table.ToCRM(Fields{
		FieldFirstName: "Ada",
		FieldLastName:  "",
		FieldCompany:   "Analytical Engines",
		FieldTags:      []string{},
	})

	assert.Equal(t, map[string]any{"FirstName": "Ada"}, native)
}

func TestFromCRMReadsNestedPath(t *testing.T) {
	table := testContactTable()
	f := table.FromCRM(map[string]any{
		"FirstName": "Ada",
		"Account":   map[string]any{"Name": "Analytical Engines"},
		"Tags__c":   nil,
	})

	assert.Equal(t, "Analytical Engines", f[FieldCompany])
	assert.Equal(t, "Ada", f[FieldFirstName])
	assert.NotContains(t, f, FieldTags)
}

func TestDealRoundTripWithDates(t *testing.T) {
	table := NewTable(models.ProviderPipedrive, models.ObjectDeal,
		FieldMapping{Canonical: FieldTitle, Provider: "title"},
		FieldMapping{Canonical: FieldValue, Provider: "value"},
		FieldMapping{Canonical: FieldExpectedCloseDate, Provider: "expected_close_date", ToCRM: DateToString, FromCRM: StringToDate},
		FieldMapping{Canonical: FieldProbability, Provider: "probability"},
	)

	closeDate := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	prob := 60.0
	deal := &models.Deal{Title: "Renewal", Value: 1200.5, ExpectedCloseDate: &closeDate, Probability: &prob}

	f := DealFields(deal)
	native := table.ToCRM(f)
	assert.Equal(t, "2026-03-31", native["expected_close_date"])

	back := DealFromFields(roundTrip(t, table, f), nil)
	assert.Equal(t, "Renewal", back.Title)
	assert.Equal(t, 1200.5, back.Value)
	require.NotNil(t, back.ExpectedCloseDate)
	assert.True(t, closeDate.Equal(*back.ExpectedCloseDate))
	require.NotNil(t, back.Probability)
	assert.Equal(t, 60.0, *back.Probability)
}

func TestProviderFields(t *testing.T) {
	table := testContactTable()
	assert.Equal(t,
		[]string{"FirstName", "LastName", "Email", "Account.Name", "Tags__c", "Custom_Fields__c"},
		table.ProviderFields())

	name, ok := table.ProviderField(FieldEmail)
	assert.True(t, ok)
	assert.Equal(t, "Email", name)
}

func TestContactFromFieldsAppendsExternalRef(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	ref := NewExternalRef(models.ProviderHubSpot, "501", created, updated)

	c := ContactFromFields(Fields{FieldEmail: "a@b.co"}, ref)
	assert.Equal(t, "hubspotId", c.External.IDField)
	assert.Equal(t, "501", c.External.ID)
	assert.Equal(t, updated, c.UpdatedAt)
}

func TestIsEmpty(t *testing.T) {
	var nilTime *time.Time
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("  "))
	assert.True(t, IsEmpty([]string{}))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.True(t, IsEmpty(time.Time{}))
	assert.True(t, IsEmpty(nilTime))
	assert.False(t, IsEmpty(0.0))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty("x"))
}
