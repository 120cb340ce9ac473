// ABOUTME: Salesforce REST API wire types
// ABOUTME: SOQL query pages, sObject create results and Change Data Capture events
package salesforce

import "encoding/json"

type queryResponse struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl,omitempty"`
	Records        []map[string]any `json:"records"`
}

type createResult struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
}

type apiError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields"`
}

type userInfo struct {
	UserID            string `json:"user_id"`
	OrganizationID    string `json:"organization_id"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

type changeEventHeader struct {
	EntityName      string      `json:"entityName"`
	RecordIDs       []string    `json:"recordIds"`
	ChangeType      string      `json:"changeType"`
	ChangeOrigin    string      `json:"changeOrigin"`
	TransactionKey  string      `json:"transactionKey"`
	CommitTimestamp json.Number `json:"commitTimestamp"`
	ChangedFields   []string    `json:"changedFields"`
}

type changeEventPayload struct {
	ChangeEventHeader *changeEventHeader `json:"ChangeEventHeader"`
}

// changeEvent accepts both the streaming envelope ({"payload": ..., "event": ...})
// and a bare payload as forwarded by most relays.
type changeEvent struct {
	ChangeEventHeader *changeEventHeader  `json:"ChangeEventHeader"`
	Payload           *changeEventPayload `json:"payload"`
	Event             *struct {
		ReplayID json.Number `json:"replayId"`
	} `json:"event"`
}

func (e changeEvent) header() *changeEventHeader {
	if e.Payload != nil && e.Payload.ChangeEventHeader != nil {
		return e.Payload.ChangeEventHeader
	}
	return e.ChangeEventHeader
}
