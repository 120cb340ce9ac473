// ABOUTME: HubSpot CRM v3 wire types
// ABOUTME: Converted to canonical models at the client boundary and nowhere else
package hubspot

import (
	"encoding/json"
	"time"
)

type object struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Archived   bool           `json:"archived"`
}

type objectInput struct {
	Properties   map[string]any `json:"properties"`
	Associations []association  `json:"associations,omitempty"`
}

type association struct {
	To    associationTarget `json:"to"`
	Types []associationType `json:"types"`
}

type associationTarget struct {
	ID string `json:"id"`
}

type associationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

type listResponse struct {
	Results []object `json:"results"`
	Paging  *paging  `json:"paging,omitempty"`
}

type paging struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next,omitempty"`
}

func (r listResponse) nextCursor() string {
	if r.Paging == nil || r.Paging.Next == nil {
		return ""
	}
	return r.Paging.Next.After
}

type searchRequest struct {
	Query        string        `json:"query,omitempty"`
	FilterGroups []filterGroup `json:"filterGroups,omitempty"`
	Sorts        []sortSpec    `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type sortSpec struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type accountDetails struct {
	PortalID int64  `json:"portalId"`
	UIDomain string `json:"uiDomain"`
}

type webhookSettings struct {
	TargetURL  string     `json:"targetUrl"`
	Throttling throttling `json:"throttling"`
}

type throttling struct {
	MaxConcurrentRequests int    `json:"maxConcurrentRequests"`
	Period                string `json:"period,omitempty"`
}

type subscriptionInput struct {
	EventType    string `json:"eventType"`
	PropertyName string `json:"propertyName,omitempty"`
	Active       bool   `json:"active"`
}

type subscription struct {
	ID           json.Number `json:"id"`
	EventType    string      `json:"eventType"`
	PropertyName string      `json:"propertyName,omitempty"`
	Active       bool        `json:"active"`
}

// webhookEvent is one element of a HubSpot webhook delivery.
type webhookEvent struct {
	EventID          json.Number `json:"eventId"`
	SubscriptionID   json.Number `json:"subscriptionId"`
	PortalID         json.Number `json:"portalId"`
	OccurredAt       json.Number `json:"occurredAt"`
	SubscriptionType string      `json:"subscriptionType"`
	AttemptNumber    int         `json:"attemptNumber"`
	ObjectID         json.Number `json:"objectId"`
	PropertyName     string      `json:"propertyName,omitempty"`
	PropertyValue    string      `json:"propertyValue,omitempty"`
	ChangeSource     string      `json:"changeSource,omitempty"`
}
