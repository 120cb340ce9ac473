// ABOUTME: Pipedrive webhook subscriptions, v1 and v2 payload normalization, basic-auth checks
// ABOUTME: Pipedrive authenticates deliveries with the http_auth credentials given at subscription time
package pipedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

// DefaultWebhookEvents are "action.object" pairs subscribed when the config
// names none.
var DefaultWebhookEvents = []string{"*.person", "*.deal"}

var objectTypes = map[string]models.ObjectType{
	"person":       models.ObjectContact,
	"deal":         models.ObjectDeal,
	"organization": models.ObjectCompany,
	"activity":     models.ObjectActivity,
	"note":         models.ObjectNote,
}

var actions = map[string]models.WebhookAction{
	"added":   models.ActionCreated,
	"create":  models.ActionCreated,
	"updated": models.ActionUpdated,
	"change":  models.ActionUpdated,
	"merged":  models.ActionUpdated,
	"deleted": models.ActionDeleted,
	"delete":  models.ActionDeleted,
}

// SetupWebhooks creates one Pipedrive webhook per event.
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
		action, object, ok := strings.Cut(event, ".")
		if !ok {
			return subs, fmt.Errorf("invalid pipedrive webhook event %q, want action.object", event)
		}

		in := webhookInput{
			SubscriptionURL:  cfg.TargetURL,
			EventAction:      action,
			EventObject:      object,
			HTTPAuthUser:     cfg.AuthUser,
			HTTPAuthPassword: cfg.AuthPassword,
		}
		var out webhook
		if err := c.do(ctx, "POST", "/webhooks", nil, in, &out, nil); err != nil {
			return subs, c.wrap("subscribe to "+event, err)
		}

		subs = append(subs, models.WebhookSubscription{
			ID:         out.ID.String(),
			Provider:   models.ProviderPipedrive,
			ObjectType: objectTypes[object],
			Event:      event,
			TargetURL:  cfg.TargetURL,
			Active:     isActive(out.IsActive),
		})
		c.logger.Info("webhook subscription created", zap.String("event", event), zap.String("id", out.ID.String()))
	}
	return subs, nil
}

// HandleWebhook normalizes a v1 or v2 Pipedrive delivery.
func (c *Client) HandleWebhook(ctx context.Context, payload []byte) (*models.CRMWebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", crm.ErrInvalidWebhook, err)
	}
	if body.Meta == nil {
		return nil, fmt.Errorf("%w: missing meta", crm.ErrInvalidWebhook)
	}
	meta := body.Meta

	// v1 puts the object id in meta.id; v2 uses meta.id for the event id.
	objectName, objectID, eventID := meta.Object, idString(meta.ID), ""
	if meta.Entity != "" {
		objectName, objectID, eventID = meta.Entity, meta.EntityID, idString(meta.ID)
	}

	objectType, ok := objectTypes[objectName]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported object %q", crm.ErrInvalidWebhook, objectName)
	}
	action, ok := actions[meta.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported action %q", crm.ErrInvalidWebhook, meta.Action)
	}
	if objectID == "" {
		return nil, fmt.Errorf("%w: missing object id", crm.ErrInvalidWebhook)
	}

	ts := webhookTime(meta.Timestamp)
	if ts.IsZero() {
		ts = c.now().UTC()
	}

	id := eventID
	if id == "" {
		id = crm.NewEventID(ts)
	}

	return &models.CRMWebhookEvent{
		ID:         id,
		Provider:   models.ProviderPipedrive,
		Type:       meta.Action + "." + objectName,
		ObjectType: objectType,
		ObjectID:   objectID,
		Action:     action,
		Payload:    json.RawMessage(payload),
		Timestamp:  ts,
	}, nil
}

func idString(v any) string {
	s, _ := fromID(v).(string)
	return s
}

func isActive(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	}
	return true
}

// webhookTime reads v1 unix seconds or v2 ISO timestamps.
func webhookTime(v any) time.Time {
	switch val := v.(type) {
	case float64:
		return time.Unix(int64(val), 0).UTC()
	case string:
		if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
		t, _ := mapping.ParseTimestamp(val)
		return t
	}
	return time.Time{}
}

// VerifyWebhook checks the basic auth credentials configured for deliveries.
func (c *Client) VerifyWebhook(headers http.Header, method, url string, body []byte) error {
	if c.webhook.AuthUser == "" {
		return fmt.Errorf("%w: no webhook credentials configured", crm.ErrInvalidWebhook)
	}
	return crm.VerifyBasicAuth(headers, c.webhook.AuthUser, c.webhook.AuthPassword)
}
