package pipedrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

func TestHandleWebhookV1(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	ev, err := c.HandleWebhook(context.Background(), []byte(
		`{"v":1,"meta":{"action":"updated","object":"person","id":77,"timestamp":1775034000},"current":{"id":77}}`))
	require.NoError(t, err)

	assert.Equal(t, models.ActionUpdated, ev.Action)
	assert.Equal(t, models.ObjectContact, ev.ObjectType)
	assert.Equal(t, "77", ev.ObjectID)
	assert.Equal(t, "updated.person", ev.Type)
	assert.Equal(t, time.Unix(1775034000, 0).UTC(), ev.Timestamp)
	assert.NotEmpty(t, ev.ID)
}

func TestHandleWebhookV2(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	ev, err := c.HandleWebhook(context.Background(), []byte(
		`{"meta":{"action":"delete","entity":"deal","entity_id":"12","id":"6f1c2b1e-uuid","timestamp":"2026-04-01T08:59:00.000Z","version":"2.0"},"data":null}`))
	require.NoError(t, err)

	assert.Equal(t, models.ActionDeleted, ev.Action)
	assert.Equal(t, models.ObjectDeal, ev.ObjectType)
	assert.Equal(t, "12", ev.ObjectID)
	assert.Equal(t, "6f1c2b1e-uuid", ev.ID)
	assert.Equal(t, time.Date(2026, 4, 1, 8, 59, 0, 0, time.UTC), ev.Timestamp)
}

func TestHandleWebhookMergedIsUpdate(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	ev, err := c.HandleWebhook(context.Background(), []byte(`{"meta":{"action":"merged","object":"person","id":5}}`))
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdated, ev.Action)
	assert.Equal(t, fixedNow, ev.Timestamp)
}

func TestHandleWebhookRejectsInvalid(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	for _, p := range []string{
		`{}`,
		`{"meta":{"action":"added","object":"product","id":1}}`,
		`{"meta":{"action":"exploded","object":"person","id":1}}`,
		`{"meta":{"action":"added","object":"person"}}`,
		`garbage`,
	} {
		ev, err := c.HandleWebhook(context.Background(), []byte(p))
		assert.ErrorIs(t, err, crm.ErrInvalidWebhook, "payload %s", p)
		assert.Nil(t, ev)
	}
}

func TestVerifyWebhookBasicAuth(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), crm.WithWebhookConfig(crm.WebhookConfig{AuthUser: "hook", AuthPassword: "pw"}))

	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	req.SetBasicAuth("hook", "pw")
	assert.NoError(t, c.VerifyWebhook(req.Header, "POST", "/", nil))

	req.SetBasicAuth("hook", "wrong")
	assert.ErrorIs(t, c.VerifyWebhook(req.Header, "POST", "/", nil), crm.ErrInvalidWebhook)

	unconfigured := newTestClient(t, http.NotFoundHandler())
	assert.ErrorIs(t, unconfigured.VerifyWebhook(req.Header, "POST", "/", nil), crm.ErrInvalidWebhook)
}

func TestSetupWebhooks(t *testing.T) {
	var got []webhookInput
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		var in webhookInput
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &in))
		got = append(got, in)
		writeData(w, `{"id":`+string(rune('0'+len(got)))+`,"is_active":1}`, "")
	})

	c := newTestClient(t, mux)
	subs, err := c.SetupWebhooks(context.Background(), crm.WebhookConfig{
		TargetURL: "https://hooks.example.com/webhooks/pipedrive/acme", AuthUser: "hook", AuthPassword: "pw",
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "*", got[0].EventAction)
	assert.Equal(t, "person", got[0].EventObject)
	assert.Equal(t, "hook", got[0].HTTPAuthUser)
	assert.Equal(t, models.ObjectDeal, subs[1].ObjectType)
	assert.True(t, subs[0].Active)
	assert.Equal(t, "2", subs[1].ID)

	_, err = c.SetupWebhooks(context.Background(), crm.WebhookConfig{TargetURL: "x", Events: []string{"nodot"}})
	assert.Error(t, err)
}
