// ABOUTME: Salesforce implementation of crm.Client over the REST API
// ABOUTME: Contacts and Opportunities via sObjects, reads and deltas via SOQL
package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/mapping"
	"github.com/harperreed/crmsync/models"
)

const (
	apiVersion = "v59.0"
	dataPath   = "/services/data/" + apiVersion
)

// Client talks to one Salesforce org.
type Client struct {
	session   *crm.OAuthSession
	transport *crm.Transport
	contacts  *mapping.Table
	deals     *mapping.Table
	baseURL   string
	loginURL  string
	logger    *zap.Logger
	now       func() time.Time
	webhook   crm.WebhookConfig
}

var (
	_ crm.Client          = (*Client)(nil)
	_ crm.OAuthClient     = (*Client)(nil)
	_ crm.WebhookVerifier = (*Client)(nil)
)

// New creates a Salesforce client. The API host is creds.InstanceURL unless
// a base URL option overrides it; it is updated after every token exchange.
func New(creds models.Credentials, opts ...crm.Option) (*Client, error) {
	if creds.AccessToken == "" && creds.RefreshToken == "" && creds.ClientID == "" {
		return nil, fmt.Errorf("%w: salesforce requires an access token, refresh token or client id", crm.ErrAuthentication)
	}

	cfg := crm.NewConfig(models.ProviderSalesforce, opts...)
	loginURL := cfg.AuthURL
	if loginURL == "" {
		loginURL = defaultLoginURL
	}
	if len(cfg.Scopes) == 0 && len(creds.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	c := &Client{
		session:  crm.NewOAuthSession(models.ProviderSalesforce, creds, endpoint(loginURL), tokenTTL, cfg),
		contacts: ContactTable(),
		deals:    DealTable(),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		loginURL: strings.TrimRight(loginURL, "/"),
		logger:   cfg.Logger.With(zap.String("provider", string(models.ProviderSalesforce))),
		now:      cfg.Now,
		webhook:  cfg.Webhook,
	}
	c.transport = crm.NewTransport(models.ProviderSalesforce, c.apiBase, c.session, cfg)
	return c, nil
}

func (c *Client) apiBase() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return strings.TrimRight(c.session.InstanceURL(), "/")
}

func (c *Client) Provider() models.Provider { return models.ProviderSalesforce }

func (c *Client) Credentials() models.Credentials { return c.session.Credentials() }

func (c *Client) Close() error {
	c.transport.Close()
	return nil
}

func (c *Client) wrap(action string, err error) error {
	return fmt.Errorf("failed to %s in salesforce: %w", action, err)
}

// ValidateConnection reads the OpenID userinfo of the token owner.
func (c *Client) ValidateConnection(ctx context.Context) models.ConnectionStatus {
	start := c.now()
	status := models.ConnectionStatus{Provider: models.ProviderSalesforce, CheckedAt: start}

	var info userInfo
	err := c.transport.Do(ctx, "GET", "/services/oauth2/userinfo", nil, nil, &info)
	status.Latency = c.now().Sub(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.Account = info.OrganizationID
	status.InstanceURL = c.apiBase()
	return status
}

// soqlQuote quotes s as a SOQL string literal.
func soqlQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func selectClause(table *mapping.Table, object string) string {
	fields := append([]string{"Id"}, table.ProviderFields()...)
	fields = append(fields, "CreatedDate", "LastModifiedDate")
	return "SELECT " + strings.Join(fields, ", ") + " FROM " + object
}

func (c *Client) query(ctx context.Context, soql string) (*queryResponse, error) {
	var resp queryResponse
	if err := c.transport.Do(ctx, "GET", dataPath+"/query", url.Values{"q": {soql}}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// queryPage runs soql, or follows a nextRecordsUrl cursor.
func (c *Client) queryPage(ctx context.Context, soql, cursor string) (*queryResponse, error) {
	if cursor == "" {
		return c.query(ctx, soql)
	}
	var resp queryResponse
	if err := c.transport.Do(ctx, "GET", cursor, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func timestamps(record map[string]any) (time.Time, time.Time) {
	created, _ := mapping.RFC3339ToTime(record["CreatedDate"]).(time.Time)
	updated, _ := mapping.RFC3339ToTime(record["LastModifiedDate"]).(time.Time)
	return created, updated
}

func (c *Client) toContact(record map[string]any) *models.Contact {
	id, _ := record["Id"].(string)
	created, updated := timestamps(record)
	ref := mapping.NewExternalRef(models.ProviderSalesforce, id, created, updated)
	return mapping.ContactFromFields(c.contacts.FromCRM(record), ref)
}

func (c *Client) toDeal(record map[string]any) *models.Deal {
	id, _ := record["Id"].(string)
	created, updated := timestamps(record)
	ref := mapping.NewExternalRef(models.ProviderSalesforce, id, created, updated)
	return mapping.DealFromFields(c.deals.FromCRM(record), ref)
}

func (c *Client) getRecord(ctx context.Context, table *mapping.Table, object, id string) (map[string]any, error) {
	soql := selectClause(table, object) + " WHERE Id = " + soqlQuote(id) + " LIMIT 1"
	resp, err := c.query(ctx, soql)
	if err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 {
		return nil, fmt.Errorf("%s %s: %w", object, id, crm.ErrNotFound)
	}
	return resp.Records[0], nil
}

func (c *Client) create(ctx context.Context, object string, fields map[string]any) (string, error) {
	var res createResult
	if err := c.transport.Do(ctx, "POST", dataPath+"/sobjects/"+object, nil, fields, &res); err != nil {
		return "", err
	}
	if !res.Success || res.ID == "" {
		msg := "unknown error"
		if len(res.Errors) > 0 {
			msg = res.Errors[0].StatusCode + ": " + res.Errors[0].Message
		}
		return "", fmt.Errorf("create %s rejected: %s", object, msg)
	}
	return res.ID, nil
}

func (c *Client) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	id, err := c.create(ctx, "Contact", c.contacts.ToCRM(mapping.ContactFields(contact)))
	if err != nil {
		return nil, c.wrap("create contact", err)
	}
	return c.GetContact(ctx, id)
}

// UpdateContact patches the record and reads it back for its new
// LastModifiedDate.
func (c *Client) UpdateContact(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error) {
	fields := c.contacts.ToCRM(mapping.ContactFields(contact))
	if err := c.transport.Do(ctx, "PATCH", dataPath+"/sobjects/Contact/"+url.PathEscape(id), nil, fields, nil); err != nil {
		return nil, c.wrap("update contact", err)
	}
	return c.GetContact(ctx, id)
}

func (c *Client) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	record, err := c.getRecord(ctx, c.contacts, "Contact", id)
	if err != nil {
		return nil, c.wrap("get contact", err)
	}
	return c.toContact(record), nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "DELETE", dataPath+"/sobjects/Contact/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return c.wrap("delete contact", err)
	}
	return nil
}

func listQuery(table *mapping.Table, object string, since *time.Time) string {
	soql := selectClause(table, object)
	if since != nil {
		soql += " WHERE LastModifiedDate > " + since.UTC().Format(time.RFC3339)
	}
	return soql + " ORDER BY LastModifiedDate ASC"
}

// ListContacts runs a SOQL query; the cursor is Salesforce's nextRecordsUrl.
func (c *Client) ListContacts(ctx context.Context, opts crm.ListOptions) (*crm.ContactPage, error) {
	resp, err := c.queryPage(ctx, listQuery(c.contacts, "Contact", opts.Since), opts.Cursor)
	if err != nil {
		return nil, c.wrap("list contacts", err)
	}

	page := &crm.ContactPage{}
	if !resp.Done {
		page.NextCursor = resp.NextRecordsURL
	}
	for _, r := range resp.Records {
		page.Contacts = append(page.Contacts, c.toContact(r))
	}
	return page, nil
}

// SearchContacts matches the query against email exactly and name by prefix.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]*models.Contact, error) {
	q := strings.TrimSpace(query)
	like := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(q) + "%"
	soql := selectClause(c.contacts, "Contact") +
		" WHERE Email = " + soqlQuote(q) + " OR Name LIKE " + soqlQuote(like) +
		fmt.Sprintf(" LIMIT %d", crm.LimitsFor(models.ProviderSalesforce).PageSize)

	resp, err := c.query(ctx, soql)
	if err != nil {
		return nil, c.wrap("search contacts", err)
	}

	out := make([]*models.Contact, 0, len(resp.Records))
	for _, r := range resp.Records {
		out = append(out, c.toContact(r))
	}
	return out, nil
}

func (c *Client) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	id, err := c.create(ctx, "Opportunity", c.deals.ToCRM(mapping.DealFields(deal)))
	if err != nil {
		return nil, c.wrap("create deal", err)
	}
	return c.GetDeal(ctx, id)
}

func (c *Client) UpdateDeal(ctx context.Context, id string, deal *models.Deal) (*models.Deal, error) {
	fields := c.deals.ToCRM(mapping.DealFields(deal))
	if err := c.transport.Do(ctx, "PATCH", dataPath+"/sobjects/Opportunity/"+url.PathEscape(id), nil, fields, nil); err != nil {
		return nil, c.wrap("update deal", err)
	}
	return c.GetDeal(ctx, id)
}

func (c *Client) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	record, err := c.getRecord(ctx, c.deals, "Opportunity", id)
	if err != nil {
		return nil, c.wrap("get deal", err)
	}
	return c.toDeal(record), nil
}

func (c *Client) DeleteDeal(ctx context.Context, id string) error {
	if err := c.transport.Do(ctx, "DELETE", dataPath+"/sobjects/Opportunity/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return c.wrap("delete deal", err)
	}
	return nil
}

func (c *Client) ListDeals(ctx context.Context, opts crm.ListOptions) (*crm.DealPage, error) {
	resp, err := c.queryPage(ctx, listQuery(c.deals, "Opportunity", opts.Since), opts.Cursor)
	if err != nil {
		return nil, c.wrap("list deals", err)
	}

	page := &crm.DealPage{}
	if !resp.Done {
		page.NextCursor = resp.NextRecordsURL
	}
	for _, r := range resp.Records {
		page.Deals = append(page.Deals, c.toDeal(r))
	}
	return page, nil
}

var taskSubtypes = map[models.ActivityType]string{
	models.ActivityCall:  "Call",
	models.ActivityEmail: "Email",
	models.ActivityTask:  "Task",
}

// CreateActivity stores meetings as Events, notes as Notes and everything
// else as Tasks. WhoId is the contact, WhatId the opportunity.
func (c *Client) CreateActivity(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	if err := activity.Validate(); err != nil {
		return nil, c.wrap("create activity", err)
	}

	if activity.Type == models.ActivityNote {
		content := activity.Subject
		if activity.Description != "" {
			content += "\n\n" + activity.Description
		}
		note, err := c.CreateNote(ctx, &models.Note{
			Content:   content,
			ContactID: activity.ContactID,
			DealID:    activity.DealID,
		})
		if err != nil {
			return nil, err
		}
		created := *activity
		created.ID = note.ID
		created.External = note.External
		return &created, nil
	}

	fields := map[string]any{
		"Subject":     activity.Subject,
		"Description": activity.Description,
	}
	if activity.ContactID != "" {
		fields["WhoId"] = activity.ContactID
	}
	if activity.DealID != "" {
		fields["WhatId"] = activity.DealID
	}

	object := "Task"
	if activity.Type == models.ActivityMeeting {
		object = "Event"
		start := c.now()
		if activity.DueDate != nil {
			start = *activity.DueDate
		}
		duration := activity.Duration
		if duration <= 0 {
			duration = 30 * time.Minute
		}
		fields["StartDateTime"] = start.UTC().Format(time.RFC3339)
		fields["DurationInMinutes"] = int(duration.Minutes())
	} else {
		fields["TaskSubtype"] = taskSubtypes[activity.Type]
		fields["Status"] = "Not Started"
		if activity.Completed {
			fields["Status"] = "Completed"
		}
		if activity.DueDate != nil {
			fields["ActivityDate"] = mapping.DateToString(*activity.DueDate)
		}
		if activity.Type == models.ActivityCall && activity.Duration > 0 {
			fields["CallDurationInSeconds"] = int(activity.Duration.Seconds())
		}
	}

	id, err := c.create(ctx, object, fields)
	if err != nil {
		return nil, c.wrap("create activity", err)
	}

	created := *activity
	created.ID = id
	now := c.now().UTC()
	created.External = mapping.NewExternalRef(models.ProviderSalesforce, id, now, now)
	return &created, nil
}

// CreateNote stores a classic Note attached to the contact, or to the
// opportunity when no contact is given.
func (c *Client) CreateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, c.wrap("create note", err)
	}

	parent := note.ContactID
	if parent == "" {
		parent = note.DealID
	}
	title, _, _ := strings.Cut(strings.TrimSpace(note.Content), "\n")
	if len(title) > 80 {
		title = title[:80]
	}

	id, err := c.create(ctx, "Note", map[string]any{
		"ParentId": parent,
		"Title":    title,
		"Body":     note.Content,
	})
	if err != nil {
		return nil, c.wrap("create note", err)
	}

	created := *note
	created.ID = id
	created.CreatedAt = c.now().UTC()
	created.External = mapping.NewExternalRef(models.ProviderSalesforce, id, created.CreatedAt, created.CreatedAt)
	return &created, nil
}
