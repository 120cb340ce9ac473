// ABOUTME: MCP tool handlers for connections, local contacts and sync runs
// ABOUTME: Lets an assistant inspect CRM connections and trigger syncs over stdio
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"github.com/harperreed/crmsync/transform"
	"github.com/harperreed/crmsync/web"
)

type Handlers struct {
	db      *sql.DB
	orgID   string
	clients web.ClientFactory
	logger  *zap.Logger
}

func New(database *sql.DB, orgID string, clients web.ClientFactory, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{db: database, orgID: orgID, clients: clients, logger: logger}
}

// Register adds every tool to server.
func (h *Handlers) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_connections",
		Description: "List the CRM connections of the organization and their last known status",
	}, h.ListConnections)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_connection",
		Description: "Make a cheap authenticated call to a CRM and record whether the connection works",
	}, h.CheckConnection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_contacts",
		Description: "List local contacts, optionally filtered by email",
	}, h.ListContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact",
		Description: "Add a local contact that the next sync pushes to connected CRMs",
	}, h.AddContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_sync",
		Description: "Exchange contacts with a CRM and store the result",
	}, h.RunSync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sync_runs",
		Description: "Show recent sync runs with their counters, errors and conflicts",
	}, h.ListSyncRuns)
}

type ProviderInput struct {
	Provider string `json:"provider" jsonschema:"CRM provider: salesforce, hubspot or pipedrive"`
}

func parseProvider(name string) (models.Provider, error) {
	p := models.ParseProvider(name)
	if !p.Valid() {
		return "", fmt.Errorf("unsupported provider %q", name)
	}
	return p, nil
}

type ConnectionOutput struct {
	Provider        string  `json:"provider"`
	Status          string  `json:"status"`
	Account         string  `json:"account,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
	LastValidatedAt *string `json:"last_validated_at,omitempty"`
}

type ListConnectionsInput struct{}

type ListConnectionsOutput struct {
	Connections []ConnectionOutput `json:"connections"`
}

func (h *Handlers) ListConnections(_ context.Context, request *mcp.CallToolRequest, input ListConnectionsInput) (*mcp.CallToolResult, ListConnectionsOutput, error) {
	conns, err := db.ListConnections(h.db, h.orgID)
	if err != nil {
		return nil, ListConnectionsOutput{}, err
	}

	out := ListConnectionsOutput{Connections: []ConnectionOutput{}}
	for _, c := range conns {
		co := ConnectionOutput{
			Provider:  string(c.Provider),
			Status:    c.Status,
			Account:   c.Account,
			LastError: c.LastError,
		}
		if c.LastValidatedAt != nil {
			s := c.LastValidatedAt.Format(time.RFC3339)
			co.LastValidatedAt = &s
		}
		out.Connections = append(out.Connections, co)
	}
	return nil, out, nil
}

type CheckConnectionOutput struct {
	Provider  string `json:"provider"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at"`
}

func (h *Handlers) CheckConnection(ctx context.Context, request *mcp.CallToolRequest, input ProviderInput) (*mcp.CallToolResult, CheckConnectionOutput, error) {
	provider, err := parseProvider(input.Provider)
	if err != nil {
		return nil, CheckConnectionOutput{}, err
	}

	client, err := h.clients(ctx, h.orgID, provider)
	if err != nil {
		return nil, CheckConnectionOutput{}, err
	}
	defer client.Close()

	status := client.ValidateConnection(ctx)
	if err := db.UpdateConnectionStatus(h.db, h.orgID, status); err != nil {
		return nil, CheckConnectionOutput{}, err
	}
	return nil, CheckConnectionOutput{
		Provider:  string(status.Provider),
		Connected: status.Connected,
		Account:   status.Account,
		LatencyMS: status.Latency.Milliseconds(),
		Error:     status.Error,
		CheckedAt: status.CheckedAt.Format(time.RFC3339),
	}, nil
}

type ListContactsInput struct {
	Email string `json:"email,omitempty" jsonschema:"Only contacts with this email address"`
}

type ContactOutput struct {
	ID        string   `json:"id"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	Title     string   `json:"title,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func contactToOutput(c *models.Contact) ContactOutput {
	return ContactOutput{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Company:   c.Company,
		Title:     c.Title,
		Tags:      c.Tags,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

type ListContactsOutput struct {
	Contacts []ContactOutput `json:"contacts"`
}

func (h *Handlers) ListContacts(_ context.Context, request *mcp.CallToolRequest, input ListContactsInput) (*mcp.CallToolResult, ListContactsOutput, error) {
	contacts, err := db.ListContacts(h.db, h.orgID)
	if err != nil {
		return nil, ListContactsOutput{}, err
	}

	out := ListContactsOutput{Contacts: []ContactOutput{}}
	want := transform.NormalizeEmail(input.Email)
	for _, c := range contacts {
		if want != "" && transform.NormalizeEmail(c.Email) != want {
			continue
		}
		out.Contacts = append(out.Contacts, contactToOutput(c))
	}
	return nil, out, nil
}

type AddContactInput struct {
	FirstName string `json:"first_name,omitempty" jsonschema:"First name"`
	LastName  string `json:"last_name,omitempty" jsonschema:"Last name"`
	Email     string `json:"email,omitempty" jsonschema:"Email address"`
	Phone     string `json:"phone,omitempty" jsonschema:"Phone number, normalized to E.164 when possible"`
	Company   string `json:"company,omitempty" jsonschema:"Company name"`
	Title     string `json:"title,omitempty" jsonschema:"Job title"`
}

func (h *Handlers) AddContact(_ context.Context, request *mcp.CallToolRequest, input AddContactInput) (*mcp.CallToolResult, ContactOutput, error) {
	if input.FirstName == "" && input.LastName == "" && input.Email == "" {
		return nil, ContactOutput{}, fmt.Errorf("a name or an email is required")
	}
	if input.Email != "" && !transform.ValidEmail(input.Email) {
		return nil, ContactOutput{}, fmt.Errorf("invalid email address %q", input.Email)
	}

	contact := &models.Contact{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     transform.NormalizeEmail(input.Email),
		Phone:     transform.NormalizePhoneOrKeep(input.Phone),
		Company:   input.Company,
		Title:     input.Title,
	}
	if err := db.CreateContact(h.db, h.orgID, contact); err != nil {
		return nil, ContactOutput{}, err
	}
	return nil, contactToOutput(contact), nil
}

type RunSyncInput struct {
	Provider           string `json:"provider" jsonschema:"CRM provider: salesforce, hubspot or pipedrive"`
	Direction          string `json:"direction,omitempty" jsonschema:"to_crm, from_crm or bidirectional (default)"`
	ConflictResolution string `json:"conflict_resolution,omitempty" jsonschema:"adsapp_wins, crm_wins, newest_wins (default) or manual"`
	Since              string `json:"since,omitempty" jsonschema:"Only records changed after this RFC3339 time"`
	Force              bool   `json:"force,omitempty" jsonschema:"Exchange records even when unchanged"`
}

type RunOutput struct {
	RunID            string   `json:"run_id"`
	Provider         string   `json:"provider"`
	Direction        string   `json:"direction"`
	StartedAt        string   `json:"started_at"`
	DurationMS       int64    `json:"duration_ms"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsSuccess   int      `json:"records_success"`
	RecordsFailed    int      `json:"records_failed"`
	RecordsSkipped   int      `json:"records_skipped"`
	RecordsUnmapped  int      `json:"records_unmapped"`
	Conflicts        int      `json:"conflicts"`
	Unresolved       int      `json:"unresolved"`
	Errors           []string `json:"errors,omitempty"`
	Cancelled        bool     `json:"cancelled,omitempty"`
}

func runToOutput(r models.SyncResult) RunOutput {
	out := RunOutput{
		RunID:            r.RunID,
		Provider:         string(r.Provider),
		Direction:        string(r.Direction),
		StartedAt:        r.StartedAt.Format(time.RFC3339),
		DurationMS:       r.Duration.Milliseconds(),
		RecordsProcessed: r.RecordsProcessed,
		RecordsSuccess:   r.RecordsSuccess,
		RecordsFailed:    r.RecordsFailed,
		RecordsSkipped:   r.RecordsSkipped,
		RecordsUnmapped:  r.RecordsUnmapped,
		Conflicts:        len(r.Conflicts),
		Unresolved:       len(r.Unresolved()),
		Cancelled:        r.Cancelled,
	}
	for _, e := range r.Errors {
		id := e.LocalID
		if id == "" {
			id = e.CRMRecordID
		}
		out.Errors = append(out.Errors, fmt.Sprintf("%s %s: %s", e.Phase, id, e.Message))
	}
	return out
}

func (h *Handlers) RunSync(ctx context.Context, request *mcp.CallToolRequest, input RunSyncInput) (*mcp.CallToolResult, RunOutput, error) {
	provider, err := parseProvider(input.Provider)
	if err != nil {
		return nil, RunOutput{}, err
	}

	req, err := db.LoadSyncRequest(h.db, h.orgID, provider)
	if err != nil {
		return nil, RunOutput{}, err
	}
	if input.Direction != "" {
		if req.Direction, err = models.ParseDirection(input.Direction); err != nil {
			return nil, RunOutput{}, err
		}
	}
	if input.ConflictResolution != "" {
		if req.ConflictResolution, err = models.ParseConflictResolution(input.ConflictResolution); err != nil {
			return nil, RunOutput{}, err
		}
	}
	req.Force = input.Force
	if input.Since != "" {
		since, err := time.Parse(time.RFC3339, input.Since)
		if err != nil {
			return nil, RunOutput{}, fmt.Errorf("invalid since: %w", err)
		}
		req.Since = &since
	}

	client, err := h.clients(ctx, h.orgID, provider)
	if err != nil {
		return nil, RunOutput{}, err
	}
	defer client.Close()

	outcome, runErr := sync.NewEngine(client, sync.WithLogger(h.logger)).Run(ctx, req)
	if outcome == nil {
		return nil, RunOutput{}, runErr
	}
	// Links made before an aborted run stopped must survive it.
	if err := db.SaveSyncOutcome(h.db, h.orgID, outcome); err != nil {
		return nil, RunOutput{}, err
	}
	if runErr != nil {
		return nil, RunOutput{}, fmt.Errorf("sync run %s aborted: %w", outcome.Result.RunID, runErr)
	}
	return nil, runToOutput(outcome.Result), nil
}

type ListSyncRunsInput struct {
	Provider string `json:"provider" jsonschema:"CRM provider: salesforce, hubspot or pipedrive"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 10)"`
}

type ListSyncRunsOutput struct {
	Runs []RunOutput `json:"runs"`
}

func (h *Handlers) ListSyncRuns(_ context.Context, request *mcp.CallToolRequest, input ListSyncRunsInput) (*mcp.CallToolResult, ListSyncRunsOutput, error) {
	provider, err := parseProvider(input.Provider)
	if err != nil {
		return nil, ListSyncRunsOutput{}, err
	}
	runs, err := db.ListSyncRuns(h.db, h.orgID, provider, input.Limit)
	if err != nil {
		return nil, ListSyncRunsOutput{}, err
	}

	out := ListSyncRunsOutput{Runs: []RunOutput{}}
	for _, r := range runs {
		out.Runs = append(out.Runs, runToOutput(r))
	}
	return nil, out, nil
}
