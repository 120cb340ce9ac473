package salesforce

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/mapping"
)

func TestMappingTablesRoundTrip(t *testing.T) {
	closeDate := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		table  *mapping.Table
		fields mapping.Fields
		want   mapping.Fields
	}{
		{
			name:  "contact",
			table: ContactTable(),
			fields: mapping.Fields{
				mapping.FieldFirstName:    "Ada",
				mapping.FieldLastName:     "Lovelace",
				mapping.FieldEmail:        "ada@example.com",
				mapping.FieldPhone:        "+14155552671",
				mapping.FieldCompany:      "Analytical Engines",
				mapping.FieldTitle:        "CTO",
				mapping.FieldTags:         []string{"vip", "q3;renewal"},
				mapping.FieldCustomFields: map[string]any{"tier": "gold", "seats": 12.0},
			},
			want: mapping.Fields{
				mapping.FieldFirstName:    "Ada",
				mapping.FieldLastName:     "Lovelace",
				mapping.FieldEmail:        "ada@example.com",
				mapping.FieldPhone:        "+14155552671",
				mapping.FieldTitle:        "CTO",
				mapping.FieldTags:         []string{"vip", "q3;renewal"},
				mapping.FieldCustomFields: map[string]any{"tier": "gold", "seats": 12.0},
			},
		},
		{
			name:  "deal",
			table: DealTable(),
			fields: mapping.Fields{
				mapping.FieldTitle:             "Renewal",
				mapping.FieldValue:             5000.5,
				mapping.FieldStage:             "Prospecting",
				mapping.FieldExpectedCloseDate: closeDate,
				mapping.FieldProbability:       40.0,
				mapping.FieldCompanyID:         "001xx",
				mapping.FieldContactID:         "003xx",
			},
			want: mapping.Fields{
				mapping.FieldTitle:             "Renewal",
				mapping.FieldValue:             5000.5,
				mapping.FieldStage:             "Prospecting",
				mapping.FieldExpectedCloseDate: closeDate,
				mapping.FieldProbability:       40.0,
				mapping.FieldCompanyID:         "001xx",
				mapping.FieldContactID:         "003xx",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native := tt.table.ToCRM(tt.fields)
			body, err := json.Marshal(native)
			require.NoError(t, err)
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(body, &decoded))

			assert.Equal(t, tt.want, tt.table.FromCRM(decoded))
		})
	}
}

func TestContactTableNeverWritesAccountName(t *testing.T) {
	native := ContactTable().ToCRM(mapping.Fields{mapping.FieldCompany: "Acme"})
	assert.NotContains(t, native, "Account.Name")
}
