package hubspot

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

func TestHandleWebhook(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), models.Credentials{})

	tests := []struct {
		name    string
		payload string
		action  models.WebhookAction
		object  models.ObjectType
	}{
		{"creation", `{"eventId":1,"subscriptionType":"contact.creation","objectId":501,"occurredAt":1775034000000}`,
			models.ActionCreated, models.ObjectContact},
		{"deletion", `{"eventId":2,"subscriptionType":"deal.deletion","objectId":77,"occurredAt":1775034000000}`,
			models.ActionDeleted, models.ObjectDeal},
		{"property change", `{"eventId":3,"subscriptionType":"contact.propertyChange","propertyName":"email","propertyValue":"a@b.co","objectId":501,"occurredAt":1775034000000}`,
			models.ActionUpdated, models.ObjectContact},
		{"single element batch", `[{"eventId":4,"subscriptionType":"contact.creation","objectId":9,"occurredAt":1775034000000}]`,
			models.ActionCreated, models.ObjectContact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.HandleWebhook(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.action, ev.Action)
			assert.Equal(t, tt.object, ev.ObjectType)
			assert.Equal(t, models.ProviderHubSpot, ev.Provider)
			assert.NotEmpty(t, ev.ObjectID)
			assert.Equal(t, time.UnixMilli(1775034000000).UTC(), ev.Timestamp)
		})
	}
}

func TestHandleWebhookRejectsInvalid(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), models.Credentials{})

	payloads := []string{
		`{"subscriptionType":"contact.creation"}`,
		`{"subscriptionType":"ticket.creation","objectId":1}`,
		`{"subscriptionType":"contact.weird","objectId":1}`,
		`{"objectId":1}`,
		`[{"subscriptionType":"contact.creation","objectId":1},{"subscriptionType":"contact.creation","objectId":2}]`,
		`not json`,
	}
	for _, p := range payloads {
		ev, err := c.HandleWebhook(context.Background(), []byte(p))
		assert.ErrorIs(t, err, crm.ErrInvalidWebhook, "payload %s", p)
		assert.Nil(t, ev)
	}
}

func TestHandleWebhookSplitBatch(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), models.Credentials{})
	body := `[{"eventId":1,"subscriptionType":"contact.creation","objectId":1},
		{"eventId":2,"subscriptionType":"contact.deletion","objectId":2}]`

	parts, err := crm.SplitWebhookBatch([]byte(body))
	require.NoError(t, err)
	require.Len(t, parts, 2)

	var actions []models.WebhookAction
	for _, p := range parts {
		ev, err := c.HandleWebhook(context.Background(), p)
		require.NoError(t, err)
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []models.WebhookAction{models.ActionCreated, models.ActionDeleted}, actions)
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), models.Credentials{ClientSecret: "app-secret"})

	body := []byte(`[{"eventId":1}]`)
	uri := "https://hooks.example.com/webhooks/hubspot/acme"
	ts := strconv.FormatInt(fixedNow.Add(-time.Minute).UnixMilli(), 10)

	headers := http.Header{}
	headers.Set(HeaderTimestamp, ts)
	headers.Set(HeaderSignatureV3, crm.SignHMACBase64("app-secret", []byte("POST"), []byte(uri), body, []byte(ts)))
	assert.NoError(t, c.VerifyWebhook(headers, "POST", uri, body))

	assert.ErrorIs(t, c.VerifyWebhook(headers, "POST", uri, []byte(`tampered`)), crm.ErrInvalidWebhook)

	stale := strconv.FormatInt(fixedNow.Add(-10*time.Minute).UnixMilli(), 10)
	headers.Set(HeaderTimestamp, stale)
	headers.Set(HeaderSignatureV3, crm.SignHMACBase64("app-secret", []byte("POST"), []byte(uri), body, []byte(stale)))
	assert.ErrorIs(t, c.VerifyWebhook(headers, "POST", uri, body), crm.ErrInvalidWebhook)

	assert.ErrorIs(t, c.VerifyWebhook(http.Header{}, "POST", uri, body), crm.ErrInvalidWebhook)
}

func TestSetupWebhooks(t *testing.T) {
	var subscribed []string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /webhooks/v3/42/settings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev-key", r.URL.Query().Get("hapikey"))
		var in webhookSettings
		decodeBody(t, r, &in)
		assert.Equal(t, "https://hooks.example.com/webhooks/hubspot/acme", in.TargetURL)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /webhooks/v3/42/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		var in subscriptionInput
		decodeBody(t, r, &in)
		subscribed = append(subscribed, in.EventType+":"+in.PropertyName)
		_, _ = w.Write([]byte(`{"id":` + strconv.Itoa(len(subscribed)) + `,"eventType":"` + in.EventType + `","active":true}`))
	})

	c := newTestClient(t, mux, models.Credentials{})
	subs, err := c.SetupWebhooks(context.Background(), crm.WebhookConfig{
		TargetURL:       "https://hooks.example.com/webhooks/hubspot/acme",
		Events:          []string{"contact.creation", "contact.propertyChange:email"},
		AppID:           "42",
		DeveloperAPIKey: "dev-key",
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []string{"contact.creation:", "contact.propertyChange:email"}, subscribed)
	assert.Equal(t, "2", subs[1].ID)
	assert.True(t, subs[0].Active)
	assert.Equal(t, models.ObjectContact, subs[1].ObjectType)

	_, err = c.SetupWebhooks(context.Background(), crm.WebhookConfig{TargetURL: "x"})
	assert.Error(t, err)
}
