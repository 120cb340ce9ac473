// ABOUTME: Pipedrive implementation of crm.Client over the v1 REST API
// ABOUTME: Persons map to contacts; delta reads use the recents endpoint
package pipedrive

import (
	"context"
	"encoding/json"
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

const (
	defaultBaseURL = "https://api.pipedrive.com"
	apiPrefix      = "/api/v1"
	timeLayout     = "2006-01-02 15:04:05"
)

// Client talks to one Pipedrive company account.
type Client struct {
	creds     models.Credentials
	transport *crm.Transport
	contacts  *mapping.Table
	deals     *mapping.Table
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
	pageSize  int
	webhook   crm.WebhookConfig
}

var (
	_ crm.Client          = (*Client)(nil)
	_ crm.WebhookVerifier = (*Client)(nil)
)

// New creates a Pipedrive client authenticated with creds.APIKey.
// creds.InstanceURL, when set, is the company domain URL.
func New(creds models.Credentials, opts ...crm.Option) (*Client, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, fmt.Errorf("%w: pipedrive requires an api token", crm.ErrAuthentication)
	}

	cfg := crm.NewConfig(models.ProviderPipedrive, opts...)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = creds.InstanceURL
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		creds:    creds,
		contacts: ContactTable(),
		deals:    DealTable(),
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   cfg.Logger.With(zap.String("provider", string(models.ProviderPipedrive))),
		now:      cfg.Now,
		pageSize: crm.LimitsFor(models.ProviderPipedrive).PageSize,
		webhook:  cfg.Webhook,
	}
	c.transport = crm.NewTransport(models.ProviderPipedrive, func() string { return c.baseURL }, tokenAuth{token: creds.APIKey}, cfg)
	return c, nil
}

func (c *Client) Provider() models.Provider { return models.ProviderPipedrive }

func (c *Client) Credentials() models.Credentials { return c.creds }

func (c *Client) Close() error {
	c.transport.Close()
	return nil
}

func (c *Client) wrap(action string, err error) error {
	return fmt.Errorf("failed to %s in pipedrive: %w", action, err)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, page *pagination) error {
	var env envelope
	if err := c.transport.Do(ctx, method, apiPrefix+path, query, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("pipedrive %s %s: %s", method, path, env.Error)
	}
	if page != nil && env.AdditionalData != nil && env.AdditionalData.Pagination != nil {
		*page = *env.AdditionalData.Pagination
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any, page *pagination) error {
	return c.do(ctx, "GET", path, query, nil, out, page)
}

// ValidateConnection reads the authenticated user.
func (c *Client) ValidateConnection(ctx context.Context) models.ConnectionStatus {
	start := c.now()
	status := models.ConnectionStatus{Provider: models.ProviderPipedrive, CheckedAt: start}

	var me currentUser
	err := c.get(ctx, "/users/me", nil, &me, nil)
	status.Latency = c.now().Sub(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = true
	status.Account = me.CompanyName
	if status.Account == "" {
		status.Account = me.Email
	}
	if me.CompanyDomain != "" {
		status.InstanceURL = "https://" + me.CompanyDomain + ".pipedrive.com"
	}
	return status
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, _ := mapping.ParseTimestamp(s)
	return t
}

func (c *Client) toContact(native map[string]any) *models.Contact {
	id, _ := fromID(native["id"]).(string)
	ref := mapping.NewExternalRef(models.ProviderPipedrive, id, parseTime(native["add_time"]), parseTime(native["update_time"]))

	f := c.contacts.FromCRM(native)
	contact := mapping.ContactFromFields(f, ref)
	if contact.FirstName == "" && contact.LastName == "" {
		if name, ok := native["name"].(string); ok {
			first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
			contact.FirstName, contact.LastName = first, strings.TrimSpace(last)
		}
	}
	contact.CustomFields = customFieldsFromNative(native)
	return contact
}

func (c *Client) personInput(contact *models.Contact) map[string]any {
	native := c.contacts.ToCRM(mapping.ContactFields(contact))
	name := contact.FullName()
	if name == "" {
		name = contact.Email
	}
	if name != "" {
		native["name"] = name
	}
	customFieldsToNative(contact.CustomFields, native)
	return native
}

func (c *Client) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	var out map[string]any
	if err := c.do(ctx, "POST", "/persons", nil, c.personInput(contact), &out, nil); err != nil {
		return nil, c.wrap("create contact", err)
	}
	return c.toContact(out), nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error) {
	var out map[string]any
	if err := c.do(ctx, "PUT", "/persons/"+url.PathEscape(id), nil, c.personInput(contact), &out, nil); err != nil {
		return nil, c.wrap("update contact", err)
	}
	return c.toContact(out), nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var out map[string]any
	if err := c.get(ctx, "/persons/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, c.wrap("get contact", err)
	}
	if out == nil {
		return nil, c.wrap("get contact", crm.ErrNotFound)
	}
	return c.toContact(out), nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := c.do(ctx, "DELETE", "/persons/"+url.PathEscape(id), nil, nil, nil, nil); err != nil {
		return c.wrap("delete contact", err)
	}
	return nil
}

// listNative pages a collection. With since set it reads the recents feed,
// which only returns records changed after since.
func (c *Client) listNative(ctx context.Context, collection, recentsItem string, opts crm.ListOptions) ([]map[string]any, string, error) {
	limit := opts.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if opts.Cursor != "" {
		q.Set("start", opts.Cursor)
	}

	var page pagination
	var records []map[string]any

	if opts.Since == nil {
		if err := c.get(ctx, "/"+collection, q, &records, &page); err != nil {
			return nil, "", err
		}
	} else {
		q.Set("since_timestamp", opts.Since.UTC().Format(timeLayout))
		q.Set("items", recentsItem)

		var items []recentItem
		if err := c.get(ctx, "/recents", q, &items, &page); err != nil {
			return nil, "", err
		}
		for _, item := range items {
			if item.Item == recentsItem && item.Data != nil {
				records = append(records, item.Data)
			}
		}
	}

	next := ""
	if page.MoreItemsInCollection {
		next = strconv.Itoa(page.NextStart)
	}
	return records, next, nil
}

func (c *Client) ListContacts(ctx context.Context, opts crm.ListOptions) (*crm.ContactPage, error) {
	records, next, err := c.listNative(ctx, "persons", "person", opts)
	if err != nil {
		return nil, c.wrap("list contacts", err)
	}

	page := &crm.ContactPage{NextCursor: next}
	for _, r := range records {
		page.Contacts = append(page.Contacts, c.toContact(r))
	}
	return page, nil
}

// SearchContacts runs a term search over name, email and phone. Search
// results carry fewer fields than full person records.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]*models.Contact, error) {
	q := url.Values{
		"term":   {query},
		"fields": {"name,email,phone"},
		"limit":  {strconv.Itoa(c.pageSize)},
	}

	var result searchResult
	if err := c.get(ctx, "/persons/search", q, &result, nil); err != nil {
		return nil, c.wrap("search contacts", err)
	}

	out := make([]*models.Contact, 0, len(result.Items))
	for _, it := range result.Items {
		p := it.Item
		first, last, _ := strings.Cut(strings.TrimSpace(p.Name), " ")
		contact := &models.Contact{
			FirstName: first,
			LastName:  strings.TrimSpace(last),
			External:  mapping.NewExternalRef(models.ProviderPipedrive, p.ID.String(), time.Time{}, time.Time{}),
		}
		if len(p.Emails) > 0 {
			contact.Email = p.Emails[0]
		}
		if len(p.Phones) > 0 {
			contact.Phone = p.Phones[0]
		}
		if p.Organization != nil {
			contact.Company = p.Organization.Name
		}
		out = append(out, contact)
	}
	return out, nil
}

func (c *Client) toDeal(native map[string]any) *models.Deal {
	id, _ := fromID(native["id"]).(string)
	ref := mapping.NewExternalRef(models.ProviderPipedrive, id, parseTime(native["add_time"]), parseTime(native["update_time"]))
	deal := mapping.DealFromFields(c.deals.FromCRM(native), ref)
	deal.CustomFields = customFieldsFromNative(native)
	return deal
}

func (c *Client) dealInput(deal *models.Deal) map[string]any {
	native := c.deals.ToCRM(mapping.DealFields(deal))
	customFieldsToNative(deal.CustomFields, native)
	return native
}

func (c *Client) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	var out map[string]any
	if err := c.do(ctx, "POST", "/deals", nil, c.dealInput(deal), &out, nil); err != nil {
		return nil, c.wrap("create deal", err)
	}
	return c.toDeal(out), nil
}

func (c *Client) UpdateDeal(ctx context.Context, id string, deal *models.Deal) (*models.Deal, error) {
	var out map[string]any
	if err := c.do(ctx, "PUT", "/deals/"+url.PathEscape(id), nil, c.dealInput(deal), &out, nil); err != nil {
		return nil, c.wrap("update deal", err)
	}
	return c.toDeal(out), nil
}

func (c *Client) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	var out map[string]any
	if err := c.get(ctx, "/deals/"+url.PathEscape(id), nil, &out, nil); err != nil {
		return nil, c.wrap("get deal", err)
	}
	if out == nil {
		return nil, c.wrap("get deal", crm.ErrNotFound)
	}
	return c.toDeal(out), nil
}

func (c *Client) DeleteDeal(ctx context.Context, id string) error {
	if err := c.do(ctx, "DELETE", "/deals/"+url.PathEscape(id), nil, nil, nil, nil); err != nil {
		return c.wrap("delete deal", err)
	}
	return nil
}

func (c *Client) ListDeals(ctx context.Context, opts crm.ListOptions) (*crm.DealPage, error) {
	records, next, err := c.listNative(ctx, "deals", "deal", opts)
	if err != nil {
		return nil, c.wrap("list deals", err)
	}

	page := &crm.DealPage{NextCursor: next}
	for _, r := range records {
		page.Deals = append(page.Deals, c.toDeal(r))
	}
	return page, nil
}

func parseRecordID(kind, id string) (int64, error) {
	if id == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pipedrive %s id %q", kind, id)
	}
	return n, nil
}

// CreateActivity creates a Pipedrive activity. Notes are stored as notes.
func (c *Client) CreateActivity(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	if err := activity.Validate(); err != nil {
		return nil, c.wrap("create activity", err)
	}
	if activity.Type == models.ActivityNote {
		content := activity.Subject
		if activity.Description != "" {
			content += "\n\n" + activity.Description
		}
		note, err := c.CreateNote(ctx, &models.Note{Content: content, ContactID: activity.ContactID, DealID: activity.DealID})
		if err != nil {
			return nil, err
		}
		created := *activity
		created.ID = note.ID
		created.External = note.External
		return &created, nil
	}

	personID, err := parseRecordID("person", activity.ContactID)
	if err != nil {
		return nil, c.wrap("create activity", err)
	}
	dealID, err := parseRecordID("deal", activity.DealID)
	if err != nil {
		return nil, c.wrap("create activity", err)
	}

	in := activityInput{
		Subject:  activity.Subject,
		Type:     string(activity.Type),
		PersonID: personID,
		DealID:   dealID,
		Note:     activity.Description,
	}
	if activity.Completed {
		in.Done = 1
	}
	if activity.DueDate != nil {
		due := activity.DueDate.UTC()
		in.DueDate = due.Format("2006-01-02")
		in.DueTime = due.Format("15:04")
	}
	if activity.Duration > 0 {
		in.Duration = fmt.Sprintf("%02d:%02d", int(activity.Duration.Hours()), int(activity.Duration.Minutes())%60)
	}

	var out createdObject
	if err := c.do(ctx, "POST", "/activities", nil, in, &out, nil); err != nil {
		return nil, c.wrap("create activity", err)
	}

	created := *activity
	created.ID = out.ID.String()
	created.External = mapping.NewExternalRef(models.ProviderPipedrive, created.ID, parseTime(out.AddTime), parseTime(out.AddTime))
	return &created, nil
}

func (c *Client) CreateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, c.wrap("create note", err)
	}
	personID, err := parseRecordID("person", note.ContactID)
	if err != nil {
		return nil, c.wrap("create note", err)
	}
	dealID, err := parseRecordID("deal", note.DealID)
	if err != nil {
		return nil, c.wrap("create note", err)
	}

	var out createdObject
	in := noteInput{Content: note.Content, PersonID: personID, DealID: dealID}
	if err := c.do(ctx, "POST", "/notes", nil, in, &out, nil); err != nil {
		return nil, c.wrap("create note", err)
	}

	created := *note
	created.ID = out.ID.String()
	created.CreatedAt = parseTime(out.AddTime)
	created.External = mapping.NewExternalRef(models.ProviderPipedrive, created.ID, created.CreatedAt, created.CreatedAt)
	return &created, nil
}
