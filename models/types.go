// ABOUTME: Canonical CRM record shapes shared by every provider
// ABOUTME: Defines providers, credentials, Contact, Deal, Activity, Note and webhook events
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Provider identifies a supported third-party CRM.
type Provider string

const (
	ProviderSalesforce Provider = "salesforce"
	ProviderHubSpot    Provider = "hubspot"
	ProviderPipedrive  Provider = "pipedrive"
)

// Providers lists every provider in a stable order.
func Providers() []Provider {
	return []Provider{ProviderSalesforce, ProviderHubSpot, ProviderPipedrive}
}

// ParseProvider normalizes a provider name. Unknown names are returned
// unchanged so the factory can reject them with a typed error.
func ParseProvider(name string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(name)))
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderSalesforce, ProviderHubSpot, ProviderPipedrive:
		return true
	}
	return false
}

// IDField is the attribute name used when a provider id is appended to a
// canonical record after a from_crm translation.
func (p Provider) IDField() string {
	return string(p) + "Id"
}

// ObjectType is the canonical object kind.
type ObjectType string

const (
	ObjectContact  ObjectType = "contact"
	ObjectDeal     ObjectType = "deal"
	ObjectActivity ObjectType = "activity"
	ObjectNote     ObjectType = "note"
	ObjectCompany  ObjectType = "company"
)

// Credentials are owned by the connection record of one organization and
// provider pair. OAuth providers refresh them in place.
type Credentials struct {
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	InstanceURL  string     `json:"instance_url,omitempty"`
	APIKey       string     `json:"api_key,omitempty"`
	RedirectURI  string     `json:"redirect_uri,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
}

// Expired reports whether the access token expires within skew of now.
// Tokens without a known expiry never count as expired.
func (c Credentials) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}

// ExternalRef carries provider metadata appended to a canonical record after
// it was read from a CRM. It is never sent back to the provider.
type ExternalRef struct {
	Provider  Provider  `json:"provider"`
	IDField   string    `json:"id_field"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Contact struct {
	ID           string         `json:"id"`
	FirstName    string         `json:"first_name,omitempty"`
	LastName     string         `json:"last_name,omitempty"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Company      string         `json:"company,omitempty"`
	Title        string         `json:"title,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	External     *ExternalRef   `json:"external,omitempty"`
}

// FullName joins first and last name.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Deal struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Value             float64        `json:"value,omitempty"`
	Currency          string         `json:"currency,omitempty"`
	Stage             string         `json:"stage,omitempty"`
	Pipeline          string         `json:"pipeline,omitempty"`
	ContactID         string         `json:"contact_id,omitempty"`
	CompanyID         string         `json:"company_id,omitempty"`
	ExpectedCloseDate *time.Time     `json:"expected_close_date,omitempty"`
	Probability       *float64       `json:"probability,omitempty"`
	CustomFields      map[string]any `json:"custom_fields,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	External          *ExternalRef   `json:"external,omitempty"`
}

const (
	StageProspecting   = "prospecting"
	StageQualification = "qualification"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageClosedWon     = "closed_won"
	StageClosedLost    = "closed_lost"
)

// ActivityType constants.
type ActivityType string

const (
	ActivityCall    ActivityType = "call"
	ActivityMeeting ActivityType = "meeting"
	ActivityEmail   ActivityType = "email"
	ActivityNote    ActivityType = "note"
	ActivityTask    ActivityType = "task"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCall, ActivityMeeting, ActivityEmail, ActivityNote, ActivityTask:
		return true
	}
	return false
}

type Activity struct {
	ID          string        `json:"id,omitempty"`
	Type        ActivityType  `json:"type"`
	Subject     string        `json:"subject"`
	Description string        `json:"description,omitempty"`
	ContactID   string        `json:"contact_id,omitempty"`
	DealID      string        `json:"deal_id,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Completed   bool          `json:"completed"`
	External    *ExternalRef  `json:"external,omitempty"`
}

// Validate checks the fields every provider needs.
func (a *Activity) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("invalid activity type %q", a.Type)
	}
	if a.ContactID == "" && a.DealID == "" {
		return fmt.Errorf("activity must be linked to a contact or a deal")
	}
	return nil
}

type Note struct {
	ID        string       `json:"id,omitempty"`
	Content   string       `json:"content"`
	ContactID string       `json:"contact_id,omitempty"`
	DealID    string       `json:"deal_id,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
	External  *ExternalRef `json:"external,omitempty"`
}

// Validate checks the fields every provider needs.
func (n *Note) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("note content is required")
	}
	if n.ContactID == "" && n.DealID == "" {
		return fmt.Errorf("note must be linked to a contact or a deal")
	}
	return nil
}

// ConnectionStatus is the outcome of a cheap authenticated read against a provider.
type ConnectionStatus struct {
	Provider    Provider      `json:"provider"`
	Connected   bool          `json:"connected"`
	Account     string        `json:"account,omitempty"`
	InstanceURL string        `json:"instance_url,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
}

// WebhookAction constants.
type WebhookAction string

const (
	ActionCreated WebhookAction = "created"
	ActionUpdated WebhookAction = "updated"
	ActionDeleted WebhookAction = "deleted"
)

// CRMWebhookEvent is the provider-independent shape every incoming webhook is
// normalized into.
type CRMWebhookEvent struct {
	ID         string          `json:"id"`
	Provider   Provider        `json:"provider"`
	Type       string          `json:"type"`
	ObjectType ObjectType      `json:"object_type"`
	ObjectID   string          `json:"object_id"`
	Action     WebhookAction   `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// WebhookSubscription describes one registered provider webhook.
type WebhookSubscription struct {
	ID         string     `json:"id,omitempty"`
	Provider   Provider   `json:"provider"`
	ObjectType ObjectType `json:"object_type"`
	Event      string     `json:"event"`
	TargetURL  string     `json:"target_url"`
	Active     bool       `json:"active"`
	Note       string     `json:"note,omitempty"`
}
