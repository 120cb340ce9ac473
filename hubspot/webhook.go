// ABOUTME: HubSpot webhook subscriptions, payload normalization and v3 signature checks
// ABOUTME: Deliveries arrive as arrays; callers split them with crm.SplitWebhookBatch first
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

// Signature headers sent with every HubSpot delivery.
const (
	HeaderSignatureV3 = "X-HubSpot-Signature-v3"
	HeaderTimestamp   = "X-HubSpot-Request-Timestamp"
)

// maxSignatureAge bounds replayed deliveries.
const maxSignatureAge = 5 * time.Minute

// DefaultWebhookEvents are subscribed when the config names none. A
// propertyChange event names its property after a colon.
var DefaultWebhookEvents = []string{
	"contact.creation",
	"contact.deletion",
	"contact.propertyChange:email",
	"contact.propertyChange:firstname",
	"contact.propertyChange:lastname",
	"deal.creation",
	"deal.deletion",
}

var objectTypes = map[string]models.ObjectType{
	"contact": models.ObjectContact,
	"deal":    models.ObjectDeal,
	"company": models.ObjectCompany,
}

// SetupWebhooks points the developer app at cfg.TargetURL and creates one
// subscription per event.
func (c *Client) SetupWebhooks(ctx context.Context, cfg crm.WebhookConfig) ([]models.WebhookSubscription, error) {
	if cfg.AppID == "" || cfg.DeveloperAPIKey == "" {
		return nil, fmt.Errorf("hubspot webhooks require an app id and developer api key")
	}
	if cfg.TargetURL == "" {
		return nil, fmt.Errorf("webhook target url is required")
	}

	base := "/webhooks/v3/" + url.PathEscape(cfg.AppID)
	q := url.Values{"hapikey": {cfg.DeveloperAPIKey}}

	settings := webhookSettings{TargetURL: cfg.TargetURL, Throttling: throttling{MaxConcurrentRequests: 10}}
	if err := c.transport.Do(ctx, "PUT", base+"/settings", q, settings, nil); err != nil {
		return nil, c.wrap("configure webhook target", err)
	}

	events := cfg.Events
	if len(events) == 0 {
		events = DefaultWebhookEvents
	}

	subs := make([]models.WebhookSubscription, 0, len(events))
	for _, event := range events {
		eventType, property, _ := strings.Cut(event, ":")
		in := subscriptionInput{EventType: eventType, PropertyName: property, Active: true}

		var out subscription
		if err := c.transport.Do(ctx, "POST", base+"/subscriptions", q, in, &out); err != nil {
			return subs, c.wrap("subscribe to "+event, err)
		}

		objectName, _, _ := strings.Cut(eventType, ".")
		subs = append(subs, models.WebhookSubscription{
			ID:         out.ID.String(),
			Provider:   models.ProviderHubSpot,
			ObjectType: objectTypes[objectName],
			Event:      event,
			TargetURL:  cfg.TargetURL,
			Active:     out.Active,
		})
		c.logger.Info("webhook subscription created", zap.String("event", event), zap.String("id", out.ID.String()))
	}
	return subs, nil
}

// HandleWebhook normalizes one HubSpot event. A JSON array with exactly one
// element is accepted; larger batches must be split first.
func (c *Client) HandleWebhook(ctx context.Context, payload []byte) (*models.CRMWebhookEvent, error) {
	body := bytes.TrimSpace(payload)
	if len(body) > 0 && body[0] == '[' {
		parts, err := crm.SplitWebhookBatch(body)
		if err != nil {
			return nil, err
		}
		if len(parts) != 1 {
			return nil, fmt.Errorf("%w: batch of %d events must be split", crm.ErrInvalidWebhook, len(parts))
		}
		body = parts[0]
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var ev webhookEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %w", crm.ErrInvalidWebhook, err)
	}

	objectName, change, ok := strings.Cut(ev.SubscriptionType, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing subscriptionType", crm.ErrInvalidWebhook)
	}
	objectType, ok := objectTypes[objectName]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported object %q", crm.ErrInvalidWebhook, objectName)
	}
	if ev.ObjectID == "" {
		return nil, fmt.Errorf("%w: missing objectId", crm.ErrInvalidWebhook)
	}

	var action models.WebhookAction
	switch change {
	case "creation":
		action = models.ActionCreated
	case "deletion":
		action = models.ActionDeleted
	case "propertyChange", "merge", "restore", "associationChange":
		action = models.ActionUpdated
	default:
		if ev.PropertyName == "" {
			return nil, fmt.Errorf("%w: unsupported subscriptionType %q", crm.ErrInvalidWebhook, ev.SubscriptionType)
		}
		action = models.ActionUpdated
	}

	ts := c.now().UTC()
	if ev.OccurredAt != "" {
		ms, err := ev.OccurredAt.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: bad occurredAt", crm.ErrInvalidWebhook)
		}
		ts = time.UnixMilli(ms).UTC()
	}

	id := ev.EventID.String()
	if id == "" {
		id = crm.NewEventID(ts)
	}

	return &models.CRMWebhookEvent{
		ID:         id,
		Provider:   models.ProviderHubSpot,
		Type:       ev.SubscriptionType,
		ObjectType: objectType,
		ObjectID:   ev.ObjectID.String(),
		Action:     action,
		Payload:    json.RawMessage(body),
		Timestamp:  ts,
	}, nil
}

// VerifyWebhook checks the v3 signature: base64 HMAC-SHA256, keyed with the
// app's client secret, over method, full URI, body and timestamp.
func (c *Client) VerifyWebhook(headers http.Header, method, uri string, body []byte) error {
	secret := c.webhookSecret
	if secret == "" {
		secret = c.session.Credentials().ClientSecret
	}
	if secret == "" {
		return fmt.Errorf("%w: no client secret to verify signature", crm.ErrInvalidWebhook)
	}

	signature := headers.Get(HeaderSignatureV3)
	timestamp := headers.Get(HeaderTimestamp)
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", crm.ErrInvalidWebhook)
	}

	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", crm.ErrInvalidWebhook)
	}
	if c.now().Sub(time.UnixMilli(ms)) > maxSignatureAge {
		return fmt.Errorf("%w: signature expired", crm.ErrInvalidWebhook)
	}

	expected := crm.SignHMACBase64(secret, []byte(method), []byte(uri), body, []byte(timestamp))
	if !crm.EqualSignature(expected, signature) {
		return fmt.Errorf("%w: signature mismatch", crm.ErrInvalidWebhook)
	}
	return nil
}
