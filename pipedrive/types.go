// ABOUTME: Pipedrive API v1 wire types
// ABOUTME: Every response is wrapped in a success/data/additional_data envelope
package pipedrive

import "encoding/json"

type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error,omitempty"`
	AdditionalData *additionalData `json:"additional_data,omitempty"`
}

type additionalData struct {
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             int  `json:"next_start"`
}

type recentItem struct {
	Item string         `json:"item"`
	ID   json.Number    `json:"id"`
	Data map[string]any `json:"data"`
}

type searchResult struct {
	Items []struct {
		Item searchPerson `json:"item"`
	} `json:"items"`
}

type searchPerson struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	Emails       []string    `json:"emails"`
	Phones       []string    `json:"phones"`
	Organization *struct {
		Name string `json:"name"`
	} `json:"organization"`
}

type currentUser struct {
	ID            json.Number `json:"id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	CompanyName   string      `json:"company_name"`
	CompanyDomain string      `json:"company_domain"`
}

type activityInput struct {
	Subject  string `json:"subject"`
	Type     string `json:"type"`
	DueDate  string `json:"due_date,omitempty"`
	DueTime  string `json:"due_time,omitempty"`
	Duration string `json:"duration,omitempty"`
	Done     int    `json:"done"`
	PersonID int64  `json:"person_id,omitempty"`
	DealID   int64  `json:"deal_id,omitempty"`
	Note     string `json:"note,omitempty"`
}

type noteInput struct {
	Content  string `json:"content"`
	PersonID int64  `json:"person_id,omitempty"`
	DealID   int64  `json:"deal_id,omitempty"`
}

type createdObject struct {
	ID      json.Number `json:"id"`
	AddTime string      `json:"add_time"`
}

type webhookInput struct {
	SubscriptionURL  string `json:"subscription_url"`
	EventAction      string `json:"event_action"`
	EventObject      string `json:"event_object"`
	HTTPAuthUser     string `json:"http_auth_user,omitempty"`
	HTTPAuthPassword string `json:"http_auth_password,omitempty"`
}

type webhook struct {
	ID              json.Number `json:"id"`
	EventAction     string      `json:"event_action"`
	EventObject     string      `json:"event_object"`
	SubscriptionURL string      `json:"subscription_url"`
	IsActive        any         `json:"is_active"`
}

// webhookMeta covers both the v1 (object, id) and v2 (entity, entity_id)
// delivery formats.
type webhookMeta struct {
	Action    string `json:"action"`
	Object    string `json:"object"`
	ID        any    `json:"id"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entity_id"`
	Version   string `json:"version"`
	Timestamp any    `json:"timestamp"`
}

type webhookPayload struct {
	Meta *webhookMeta `json:"meta"`
}
