// ABOUTME: HubSpot implementation of crm.Client over the CRM v3 objects API
// ABOUTME: Contacts, deals and engagements with inline associations
package hubspot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

// Association type ids for HubSpot-defined associations.
const (
	assocDealToContact = 3

	assocNoteToContact    = 202
	assocNoteToDeal       = 214
	assocCallToContact    = 194
	assocCallToDeal       = 206
	assocMeetingToContact = 200
	assocMeetingToDeal    = 212
	assocEmailToContact   = 198
	assocEmailToDeal      = 210
	assocTaskToContact    = 204
	assocTaskToDeal       = 216
)

// Client talks to one HubSpot portal.
type Client struct {
	session   *crm.OAuthSession
	transport *crm.Transport
	contacts  *mapping.Table
	deals     *mapping.Table
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
	pageSize  int

	webhookSecret string
}

var (
	_ crm.Client          = (*Client)(nil)
	_ crm.OAuthClient     = (*Client)(nil)
	_ crm.WebhookVerifier = (*Client)(nil)
)

// New creates a HubSpot client. Either tokens or OAuth app credentials are required.
func New(creds models.Credentials, opts ...crm.Option) (*Client, error) {
	if creds.AccessToken == "" && creds.RefreshToken == "" && creds.ClientID == "" {
		return nil, fmt.Errorf("%w: hubspot requires an access token, refresh token or client id", crm.ErrAuthentication)
	}

	cfg := crm.NewConfig(models.ProviderHubSpot, opts...)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	if len(cfg.Scopes) == 0 && len(creds.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	c := &Client{
		session:  crm.NewOAuthSession(models.ProviderHubSpot, creds, endpoint(authURL, baseURL), 0, cfg),
		contacts: ContactTable(),
		deals:    DealTable(),
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   cfg.Logger.With(zap.String("provider", string(models.ProviderHubSpot))),
		now:      cfg.Now,
		pageSize: crm.LimitsFor(models.ProviderHubSpot).PageSize,

		webhookSecret: cfg.Webhook.Secret,
	}
	c.transport = crm.NewTransport(models.ProviderHubSpot, func() string { return c.baseURL }, c.session, cfg)
	return c, nil
}

func (c *Client) Provider() models.Provider { return models.ProviderHubSpot }

func (c *Client) Credentials() models.Credentials { return c.session.Credentials() }

func (c *Client) Close() error {
	c.transport.Close()
	return nil
}

func (c *Client) wrap(action string, err error) error {
	return fmt.Errorf("failed to %s in hubspot: %w", action, err)
}

// ValidateConnection reads the portal details.
func (c *Client) ValidateConnection(ctx context.Context) models.ConnectionStatus {
	start := c.now()
	status := models.ConnectionStatus{Provider: models.ProviderHubSpot, CheckedAt: start}

	var details accountDetails
	err := c.transport.Do(ctx, "GET", "/account-info/v3/details", nil, nil, &details)
	status.Latency = c.now().Sub(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.Account = strconv.FormatInt(details.PortalID, 10)
	status.InstanceURL = details.UIDomain
	return status
}

func (c *Client) toContact(obj object) *models.Contact {
	ref := mapping.NewExternalRef(models.ProviderHubSpot, obj.ID, obj.CreatedAt, obj.UpdatedAt)
	return mapping.ContactFromFields(c.contacts.FromCRM(obj.Properties), ref)
}

func (c *Client) toDeal(obj object) *models.Deal {
	ref := mapping.NewExternalRef(models.ProviderHubSpot, obj.ID, obj.CreatedAt, obj.UpdatedAt)
	return mapping.DealFromFields(c.deals.FromCRM(obj.Properties), ref)
}

func (c *Client) propertiesQuery(table *mapping.Table) url.Values {
	return url.Values{"properties": {strings.Join(table.ProviderFields(), ",")}}
}

func (c *Client) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	in := objectInput{Properties: c.contacts.ToCRM(mapping.ContactFields(contact))}

	var out object
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/contacts", nil, in, &out); err != nil {
		return nil, c.wrap("create contact", err)
	}
	return c.toContact(out), nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error) {
	in := objectInput{Properties: c.contacts.ToCRM(mapping.ContactFields(contact))}

	var out object
	if err := c.transport.Do(ctx, "PATCH", "/crm/v3/objects/contacts/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, c.wrap("update contact", err)
	}
	return c.toContact(out), nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var out object
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id)
	if err := c.transport.Do(ctx, "GET", path, c.propertiesQuery(c.contacts), nil, &out); err != nil {
		return nil, c.wrap("get contact", err)
	}
	return c.toContact(out), nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "DELETE", "/crm/v3/objects/contacts/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return c.wrap("delete contact", err)
	}
	return nil
}

// ListContacts pages through contacts. With Since set it uses the search
// endpoint filtered on lastmodifieddate.
func (c *Client) ListContacts(ctx context.Context, opts crm.ListOptions) (*crm.ContactPage, error) {
	resp, err := c.list(ctx, "contacts", c.contacts, opts)
	if err != nil {
		return nil, c.wrap("list contacts", err)
	}

	page := &crm.ContactPage{NextCursor: resp.nextCursor()}
	for _, obj := range resp.Results {
		page.Contacts = append(page.Contacts, c.toContact(obj))
	}
	return page, nil
}

func (c *Client) list(ctx context.Context, objectType string, table *mapping.Table, opts crm.ListOptions) (*listResponse, error) {
	limit := opts.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}

	var resp listResponse
	if opts.Since == nil {
		q := c.propertiesQuery(table)
		q.Set("limit", strconv.Itoa(limit))
		if opts.Cursor != "" {
			q.Set("after", opts.Cursor)
		}
		if err := c.transport.Do(ctx, "GET", "/crm/v3/objects/"+objectType, q, nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{
			PropertyName: "lastmodifieddate",
			Operator:     "GT",
			Value:        strconv.FormatInt(opts.Since.UnixMilli(), 10),
		}}}},
		Sorts:      []sortSpec{{PropertyName: "lastmodifieddate", Direction: "ASCENDING"}},
		Properties: table.ProviderFields(),
		Limit:      limit,
		After:      opts.Cursor,
	}
	if objectType == "deals" {
		req.FilterGroups[0].Filters[0].PropertyName = "hs_lastmodifieddate"
		req.Sorts[0].PropertyName = "hs_lastmodifieddate"
	}
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/"+objectType+"/search", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string) ([]*models.Contact, error) {
	req := searchRequest{
		Query:      query,
		Properties: c.contacts.ProviderFields(),
		Limit:      c.pageSize,
	}

	var resp listResponse
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/contacts/search", nil, req, &resp); err != nil {
		return nil, c.wrap("search contacts", err)
	}

	out := make([]*models.Contact, 0, len(resp.Results))
	for _, obj := range resp.Results {
		out = append(out, c.toContact(obj))
	}
	return out, nil
}

func (c *Client) dealInput(deal *models.Deal) objectInput {
	in := objectInput{Properties: c.deals.ToCRM(mapping.DealFields(deal))}
	if deal.ContactID != "" {
		in.Associations = []association{newAssociation(deal.ContactID, assocDealToContact)}
	}
	return in
}

func newAssociation(id string, typeID int) association {
	return association{
		To:    associationTarget{ID: id},
		Types: []associationType{{Category: "HUBSPOT_DEFINED", TypeID: typeID}},
	}
}

func (c *Client) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	var out object
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/deals", nil, c.dealInput(deal), &out); err != nil {
		return nil, c.wrap("create deal", err)
	}
	d := c.toDeal(out)
	d.ContactID = deal.ContactID
	return d, nil
}

func (c *Client) UpdateDeal(ctx context.Context, id string, deal *models.Deal) (*models.Deal, error) {
	in := objectInput{Properties: c.deals.ToCRM(mapping.DealFields(deal))}

	var out object
	if err := c.transport.Do(ctx, "PATCH", "/crm/v3/objects/deals/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, c.wrap("update deal", err)
	}

	// PATCH ignores associations, so the contact link is set on its own.
	if deal.ContactID != "" {
		path := "/crm/v4/objects/deals/" + url.PathEscape(id) + "/associations/default/contacts/" + url.PathEscape(deal.ContactID)
		if err := c.transport.Do(ctx, "PUT", path, nil, nil, nil); err != nil {
			return nil, c.wrap("associate deal contact", err)
		}
	}

	d := c.toDeal(out)
	d.ContactID = deal.ContactID
	return d, nil
}

func (c *Client) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	var out object
	path := "/crm/v3/objects/deals/" + url.PathEscape(id)
	if err := c.transport.Do(ctx, "GET", path, c.propertiesQuery(c.deals), nil, &out); err != nil {
		return nil, c.wrap("get deal", err)
	}
	return c.toDeal(out), nil
}

func (c *Client) DeleteDeal(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "DELETE", "/crm/v3/objects/deals/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return c.wrap("delete deal", err)
	}
	return nil
}

func (c *Client) ListDeals(ctx context.Context, opts crm.ListOptions) (*crm.DealPage, error) {
	resp, err := c.list(ctx, "deals", c.deals, opts)
	if err != nil {
		return nil, c.wrap("list deals", err)
	}

	page := &crm.DealPage{NextCursor: resp.nextCursor()}
	for _, obj := range resp.Results {
		page.Deals = append(page.Deals, c.toDeal(obj))
	}
	return page, nil
}

type engagement struct {
	object           string
	contactAssocType int
	dealAssocType    int
}

var engagements = map[models.ActivityType]engagement{
	models.ActivityCall:    {"calls", assocCallToContact, assocCallToDeal},
	models.ActivityMeeting: {"meetings", assocMeetingToContact, assocMeetingToDeal},
	models.ActivityEmail:   {"emails", assocEmailToContact, assocEmailToDeal},
	models.ActivityTask:    {"tasks", assocTaskToContact, assocTaskToDeal},
	models.ActivityNote:    {"notes", assocNoteToContact, assocNoteToDeal},
}

func activityProperties(a *models.Activity, at time.Time) map[string]any {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	props := map[string]any{"hs_timestamp": ts}

	switch a.Type {
	case models.ActivityCall:
		props["hs_call_title"] = a.Subject
		props["hs_call_body"] = a.Description
		props["hs_call_status"] = "COMPLETED"
		if !a.Completed {
			props["hs_call_status"] = "SCHEDULED"
		}
		if a.Duration > 0 {
			props["hs_call_duration"] = strconv.FormatInt(a.Duration.Milliseconds(), 10)
		}
	case models.ActivityMeeting:
		props["hs_meeting_title"] = a.Subject
		props["hs_meeting_body"] = a.Description
		props["hs_meeting_start_time"] = ts
		props["hs_meeting_end_time"] = strconv.FormatInt(at.Add(a.Duration).UnixMilli(), 10)
	case models.ActivityEmail:
		props["hs_email_subject"] = a.Subject
		props["hs_email_text"] = a.Description
		props["hs_email_direction"] = "EMAIL"
	case models.ActivityTask:
		props["hs_task_subject"] = a.Subject
		props["hs_task_body"] = a.Description
		props["hs_task_status"] = "NOT_STARTED"
		if a.Completed {
			props["hs_task_status"] = "COMPLETED"
		}
	case models.ActivityNote:
		body := a.Subject
		if a.Description != "" {
			body += "\n\n" + a.Description
		}
		props["hs_note_body"] = body
	}
	return props
}

// CreateActivity creates the engagement object matching the activity type,
// associated with the contact and deal it references.
func (c *Client) CreateActivity(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	if err := activity.Validate(); err != nil {
		return nil, c.wrap("create activity", err)
	}
	eng := engagements[activity.Type]

	at := c.now()
	if activity.DueDate != nil {
		at = *activity.DueDate
	}

	in := objectInput{Properties: activityProperties(activity, at)}
	if activity.ContactID != "" {
		in.Associations = append(in.Associations, newAssociation(activity.ContactID, eng.contactAssocType))
	}
	if activity.DealID != "" {
		in.Associations = append(in.Associations, newAssociation(activity.DealID, eng.dealAssocType))
	}

	var out object
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/"+eng.object, nil, in, &out); err != nil {
		return nil, c.wrap("create activity", err)
	}

	created := *activity
	created.ID = out.ID
	created.External = mapping.NewExternalRef(models.ProviderHubSpot, out.ID, out.CreatedAt, out.UpdatedAt)
	return &created, nil
}

func (c *Client) CreateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, c.wrap("create note", err)
	}

	at := note.CreatedAt
	if at.IsZero() {
		at = c.now()
	}
	in := objectInput{Properties: map[string]any{
		"hs_note_body": note.Content,
		"hs_timestamp": strconv.FormatInt(at.UnixMilli(), 10),
	}}
	if note.ContactID != "" {
		in.Associations = append(in.Associations, newAssociation(note.ContactID, assocNoteToContact))
	}
	if note.DealID != "" {
		in.Associations = append(in.Associations, newAssociation(note.DealID, assocNoteToDeal))
	}

	var out object
	if err := c.transport.Do(ctx, "POST", "/crm/v3/objects/notes", nil, in, &out); err != nil {
		return nil, c.wrap("create note", err)
	}

	created := *note
	created.ID = out.ID
	created.CreatedAt = out.CreatedAt
	created.External = mapping.NewExternalRef(models.ProviderHubSpot, out.ID, out.CreatedAt, out.UpdatedAt)
	return &created, nil
}
