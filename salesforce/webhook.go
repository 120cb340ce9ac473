// ABOUTME: Salesforce Change Data Capture normalization and relay signature checks
// ABOUTME: CDC events reach the receiver through a relay that signs each body with a shared secret
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

// HeaderRelaySignature carries the hex HMAC-SHA256 of the body.
const HeaderRelaySignature = "X-Relay-Signature"

// DefaultWebhookEvents are the CDC channels a relay should forward.
var DefaultWebhookEvents = []string{"ContactChangeEvent", "OpportunityChangeEvent"}

var entities = map[string]models.ObjectType{
	"Contact":     models.ObjectContact,
	"Opportunity": models.ObjectDeal,
	"Account":     models.ObjectCompany,
	"Task":        models.ObjectActivity,
	"Event":       models.ObjectActivity,
	"Note":        models.ObjectNote,
}

var changeTypes = map[string]models.WebhookAction{
	"CREATE":   models.ActionCreated,
	"UPDATE":   models.ActionUpdated,
	"UNDELETE": models.ActionUpdated,
	"DELETE":   models.ActionDeleted,
}

// SetupWebhooks cannot register anything through the REST API: Change Data
// Capture is enabled per entity in Setup and consumed by a streaming relay.
// The returned subscriptions are inactive and describe what to configure.
func (c *Client) SetupWebhooks(ctx context.Context, cfg crm.WebhookConfig) ([]models.WebhookSubscription, error) {
	if cfg.TargetURL == "" {
		return nil, fmt.Errorf("webhook target url is required")
	}
	events := cfg.Events
	if len(events) == 0 {
		events = DefaultWebhookEvents
	}

	subs := make([]models.WebhookSubscription, 0, len(events))
	for _, event := range events {
		entity := strings.TrimSuffix(event, "ChangeEvent")
		subs = append(subs, models.WebhookSubscription{
			Provider:   models.ProviderSalesforce,
			ObjectType: entities[entity],
			Event:      "/data/" + event,
			TargetURL:  cfg.TargetURL,
			Active:     false,
			Note: fmt.Sprintf("enable Change Data Capture for %s in Setup and point a relay subscribed to /data/%s at %s",
				entity, event, cfg.TargetURL),
		})
	}
	return subs, nil
}

// HandleWebhook normalizes one Change Data Capture event. Only the first of
// several recordIds is reported; gap and overflow events are rejected.
func (c *Client) HandleWebhook(ctx context.Context, payload []byte) (*models.CRMWebhookEvent, error) {
	var ev changeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", crm.ErrInvalidWebhook, err)
	}

	header := ev.header()
	if header == nil {
		return nil, fmt.Errorf("%w: missing ChangeEventHeader", crm.ErrInvalidWebhook)
	}

	objectType, ok := entities[header.EntityName]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported entity %q", crm.ErrInvalidWebhook, header.EntityName)
	}
	action, ok := changeTypes[header.ChangeType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported change type %q", crm.ErrInvalidWebhook, header.ChangeType)
	}
	if len(header.RecordIDs) == 0 || header.RecordIDs[0] == "" {
		return nil, fmt.Errorf("%w: missing recordIds", crm.ErrInvalidWebhook)
	}

	ts := c.now().UTC()
	if header.CommitTimestamp != "" {
		ms, err := header.CommitTimestamp.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad commitTimestamp", crm.ErrInvalidWebhook)
		}
		ts = time.UnixMilli(ms).UTC()
	}

	id := header.TransactionKey
	if ev.Event != nil && ev.Event.ReplayID != "" {
		id = ev.Event.ReplayID.String()
	}
	if id == "" {
		id = crm.NewEventID(ts)
	}

	return &models.CRMWebhookEvent{
		ID:         id,
		Provider:   models.ProviderSalesforce,
		Type:       header.EntityName + "ChangeEvent." + header.ChangeType,
		ObjectType: objectType,
		ObjectID:   header.RecordIDs[0],
		Action:     action,
		Payload:    json.RawMessage(payload),
		Timestamp:  ts,
	}, nil
}

// VerifyWebhook checks the relay's hex HMAC-SHA256 signature of the body.
func (c *Client) VerifyWebhook(headers http.Header, method, url string, body []byte) error {
	if c.webhook.Secret == "" {
		return fmt.Errorf("%w: no relay secret configured", crm.ErrInvalidWebhook)
	}
	signature := headers.Get(HeaderRelaySignature)
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", crm.ErrInvalidWebhook, HeaderRelaySignature)
	}
	if !crm.EqualSignature(crm.SignHMACHex(c.webhook.Secret, body), strings.TrimPrefix(signature, "sha256=")) {
		return fmt.Errorf("%w: signature mismatch", crm.ErrInvalidWebhook)
	}
	return nil
}
