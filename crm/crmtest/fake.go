// ABOUTME: In-memory crm.Client for tests of code that drives a CRM
// ABOUTME: Counts calls per operation and can inject failures
package crmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
)

// Client is a fake CRM that stores records in memory.
type Client struct {
	mu       sync.Mutex
	provider models.Provider
	now      func() time.Time
	nextID   int
	contacts map[string]*models.Contact
	deals    map[string]*models.Deal
	calls    map[string]int
	failures map[string][]error
	closed   bool

	Activities []*models.Activity
	Notes      []*models.Note
}

var _ crm.Client = (*Client)(nil)

// New creates a fake for provider with a real clock.
func New(provider models.Provider) *Client {
	return &Client{
		provider: provider,
		now:      time.Now,
		contacts: make(map[string]*models.Contact),
		deals:    make(map[string]*models.Deal),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// SetClock replaces the clock used for record timestamps.
func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// FailNext makes the next calls to op return errs, one per call, in order.
func (c *Client) FailNext(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], errs...)
}

// Calls returns how often op was called.
func (c *Client) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// ResetCalls zeroes every counter.
func (c *Client) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = make(map[string]int)
}

// Seed stores a remote contact as is and returns its id.
func (c *Client) Seed(contact models.Contact) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if contact.ID == "" {
		c.nextID++
		contact.ID = "crm-" + strconv.Itoa(c.nextID)
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = c.now()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = contact.UpdatedAt
	}
	c.contacts[contact.ID] = &contact
	return contact.ID
}

// Edit changes a stored contact the way a CRM user would, stamping it at.
func (c *Client) Edit(id string, at time.Time, fn func(*models.Contact)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stored, ok := c.contacts[id]; ok {
		fn(stored)
		stored.UpdatedAt = at
	}
}

// Contact returns a copy of a stored contact.
func (c *Client) Contact(id string) (models.Contact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.contacts[id]
	if !ok {
		return models.Contact{}, false
	}
	return *stored, true
}

// ContactCount returns the number of stored contacts.
func (c *Client) ContactCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.contacts)
}

func (c *Client) enter(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	if c.closed {
		return fmt.Errorf("client closed")
	}
	if queued := c.failures[op]; len(queued) > 0 {
		c.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (c *Client) remote(contact *models.Contact) *models.Contact {
	out := *contact
	out.External = &models.ExternalRef{
		Provider:  c.provider,
		IDField:   c.provider.IDField(),
		ID:        contact.ID,
		CreatedAt: contact.CreatedAt,
		UpdatedAt: contact.UpdatedAt,
	}
	return &out
}

func (c *Client) Provider() models.Provider { return c.provider }

func (c *Client) Authenticate(ctx context.Context) error { return c.enter("Authenticate") }

func (c *Client) RefreshToken(ctx context.Context) error { return c.enter("RefreshToken") }

func (c *Client) RevokeToken(ctx context.Context) error { return c.enter("RevokeToken") }

func (c *Client) Credentials() models.Credentials {
	return models.Credentials{AccessToken: "fake"}
}

func (c *Client) ValidateConnection(ctx context.Context) models.ConnectionStatus {
	status := models.ConnectionStatus{Provider: c.provider, CheckedAt: c.now()}
	if err := c.enter("ValidateConnection"); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Connected = true
	status.Account = "fake"
	return status
}

func (c *Client) CreateContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if err := c.enter("CreateContact"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	stored := *contact
	stored.ID = "crm-" + strconv.Itoa(c.nextID)
	stored.External = nil
	stored.CreatedAt = c.now()
	stored.UpdatedAt = stored.CreatedAt
	c.contacts[stored.ID] = &stored
	return c.remote(&stored), nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error) {
	if err := c.enter("UpdateContact"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, crm.ErrNotFound)
	}
	stored := *contact
	stored.ID = id
	stored.External = nil
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = c.now()
	c.contacts[id] = &stored
	return c.remote(&stored), nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	if err := c.enter("GetContact"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, crm.ErrNotFound)
	}
	return c.remote(stored), nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := c.enter("DeleteContact"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.contacts[id]; !ok {
		return fmt.Errorf("contact %s: %w", id, crm.ErrNotFound)
	}
	delete(c.contacts, id)
	return nil
}

// ListContacts pages by record id. The cursor is the offset of the next page.
func (c *Client) ListContacts(ctx context.Context, opts crm.ListOptions) (*crm.ContactPage, error) {
	if err := c.enter("ListContacts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*models.Contact
	for _, stored := range c.contacts {
		if opts.Since != nil && !stored.UpdatedAt.After(*opts.Since) {
			continue
		}
		matched = append(matched, stored)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", opts.Cursor)
		}
		offset = n
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	page := &crm.ContactPage{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		page.Contacts = append(page.Contacts, c.remote(matched[i]))
	}
	if offset+limit < len(matched) {
		page.NextCursor = strconv.Itoa(offset + limit)
	}
	return page, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string) ([]*models.Contact, error) {
	if err := c.enter("SearchContacts"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*models.Contact
	for _, stored := range c.contacts {
		if stored.Email == query || stored.FullName() == query {
			out = append(out, c.remote(stored))
		}
	}
	return out, nil
}

func (c *Client) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	if err := c.enter("CreateDeal"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	stored := *deal
	stored.ID = "deal-" + strconv.Itoa(c.nextID)
	stored.CreatedAt = c.now()
	stored.UpdatedAt = stored.CreatedAt
	c.deals[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (c *Client) UpdateDeal(ctx context.Context, id string, deal *models.Deal) (*models.Deal, error) {
	if err := c.enter("UpdateDeal"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.deals[id]; !ok {
		return nil, fmt.Errorf("deal %s: %w", id, crm.ErrNotFound)
	}
	stored := *deal
	stored.ID = id
	stored.UpdatedAt = c.now()
	c.deals[id] = &stored
	out := stored
	return &out, nil
}

func (c *Client) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	if err := c.enter("GetDeal"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.deals[id]
	if !ok {
		return nil, fmt.Errorf("deal %s: %w", id, crm.ErrNotFound)
	}
	out := *stored
	return &out, nil
}

func (c *Client) DeleteDeal(ctx context.Context, id string) error {
	if err := c.enter("DeleteDeal"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deals, id)
	return nil
}

func (c *Client) ListDeals(ctx context.Context, opts crm.ListOptions) (*crm.DealPage, error) {
	if err := c.enter("ListDeals"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	page := &crm.DealPage{}
	for _, stored := range c.deals {
		out := *stored
		page.Deals = append(page.Deals, &out)
	}
	sort.Slice(page.Deals, func(i, j int) bool { return page.Deals[i].ID < page.Deals[j].ID })
	return page, nil
}

func (c *Client) CreateActivity(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	if err := c.enter("CreateActivity"); err != nil {
		return nil, err
	}
	if err := activity.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	out := *activity
	out.ID = "act-" + strconv.Itoa(c.nextID)
	c.Activities = append(c.Activities, &out)
	return &out, nil
}

func (c *Client) CreateNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := c.enter("CreateNote"); err != nil {
		return nil, err
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	out := *note
	out.ID = "note-" + strconv.Itoa(c.nextID)
	c.Notes = append(c.Notes, &out)
	return &out, nil
}

func (c *Client) SetupWebhooks(ctx context.Context, cfg crm.WebhookConfig) ([]models.WebhookSubscription, error) {
	if err := c.enter("SetupWebhooks"); err != nil {
		return nil, err
	}
	return []models.WebhookSubscription{{
		ID:         "sub-1",
		Provider:   c.provider,
		ObjectType: models.ObjectContact,
		Event:      "contact.*",
		TargetURL:  cfg.TargetURL,
		Active:     true,
	}}, nil
}

// HandleWebhook accepts a JSON-encoded models.CRMWebhookEvent.
func (c *Client) HandleWebhook(ctx context.Context, payload []byte) (*models.CRMWebhookEvent, error) {
	if err := c.enter("HandleWebhook"); err != nil {
		return nil, err
	}
	var event models.CRMWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ObjectID == "" || event.Action == "" {
		return nil, crm.ErrInvalidWebhook
	}
	event.Provider = c.provider
	event.Payload = json.RawMessage(payload)
	if event.ID == "" {
		event.ID = crm.NewEventID(c.now())
	}
	return &event, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
