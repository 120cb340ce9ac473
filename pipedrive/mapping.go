// ABOUTME: Pipedrive field mapping tables for persons and deals
// ABOUTME: Custom fields travel as top-level 40-character hash keys
package pipedrive

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

var customFieldKey = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ContactTable maps canonical contacts to Pipedrive person fields.
func ContactTable() *mapping.Table {
	return mapping.NewTable(models.ProviderPipedrive, models.ObjectContact,
		mapping.FieldMapping{Canonical: mapping.FieldFirstName, Provider: "first_name"},
		mapping.FieldMapping{Canonical: mapping.FieldLastName, Provider: "last_name"},
		mapping.FieldMapping{Canonical: mapping.FieldEmail, Provider: "email",
			ToCRM: mapping.ToLabelledValues, FromCRM: mapping.FromLabelledValues},
		mapping.FieldMapping{Canonical: mapping.FieldPhone, Provider: "phone",
			ToCRM: phoneToCRM, FromCRM: mapping.FromLabelledValues},
		mapping.FieldMapping{Canonical: mapping.FieldCompany, Provider: "org_name", Direction: models.DirectionFromCRM},
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "job_title"},
	)
}

// DealTable maps canonical deals to Pipedrive deal fields.
func DealTable() *mapping.Table {
	return mapping.NewTable(models.ProviderPipedrive, models.ObjectDeal,
		mapping.FieldMapping{Canonical: mapping.FieldTitle, Provider: "title"},
		mapping.FieldMapping{Canonical: mapping.FieldValue, Provider: "value",
			FromCRM: mapping.StringToNumber},
		mapping.FieldMapping{Canonical: mapping.FieldCurrency, Provider: "currency"},
		mapping.FieldMapping{Canonical: mapping.FieldStage, Provider: "stage_id",
			ToCRM: toID, FromCRM: fromID},
		mapping.FieldMapping{Canonical: mapping.FieldPipeline, Provider: "pipeline_id",
			ToCRM: toID, FromCRM: fromID},
		mapping.FieldMapping{Canonical: mapping.FieldContactID, Provider: "person_id",
			ToCRM: toID, FromCRM: fromID},
		mapping.FieldMapping{Canonical: mapping.FieldCompanyID, Provider: "org_id",
			ToCRM: toID, FromCRM: fromID},
		mapping.FieldMapping{Canonical: mapping.FieldExpectedCloseDate, Provider: "expected_close_date",
			ToCRM: mapping.DateToString, FromCRM: mapping.StringToDate},
		mapping.FieldMapping{Canonical: mapping.FieldProbability, Provider: "probability",
			FromCRM: mapping.StringToNumber},
	)
}

func phoneToCRM(v any) any {
	return mapping.ToLabelledValues(mapping.NormalizePhone(v))
}

// toID converts a canonical string id into Pipedrive's integer id.
func toID(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return n
}

// fromID reads an id that Pipedrive returns either as a number or as an
// expanded {"value": id, "name": ...} object.
func fromID(v any) any {
	switch val := v.(type) {
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	case string:
		return val
	case map[string]any:
		return fromID(val["value"])
	}
	return nil
}

// customFieldsToNative copies hash-keyed custom fields to the top level.
// Other keys have no Pipedrive field to land in and are dropped.
func customFieldsToNative(custom map[string]any, native map[string]any) {
	for k, v := range custom {
		if customFieldKey.MatchString(k) && !mapping.IsEmpty(v) {
			native[k] = v
		}
	}
}

// customFieldsFromNative collects hash-keyed fields from a Pipedrive record.
func customFieldsFromNative(native map[string]any) map[string]any {
	var out map[string]any
	for _, k := range mapping.SortedKeys(native) {
		if !customFieldKey.MatchString(k) || mapping.IsEmpty(native[k]) {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = native[k]
	}
	return out
}
