// ABOUTME: Connection CLI commands: connect, status and disconnect
// ABOUTME: OAuth providers use a loopback authorization code flow; Pipedrive takes an api token
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/factory"
	"github.com/harperreed/crmsync/models"
)

// authorizationTimeout bounds how long connect waits for the browser.
const authorizationTimeout = 5 * time.Minute

// ConnectCommand stores a validated connection to a provider.
func ConnectCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	apiKey := fs.String("api-key", "", "Pipedrive api token")
	instanceURL := fs.String("instance-url", "", "Pipedrive company domain URL")
	noBrowser := fs.Bool("no-browser", false, "Print the authorization URL without opening a browser")
	_ = fs.Parse(args)

	provider, err := parseProvider(fs.Args(), "connect")
	if err != nil {
		return err
	}

	ctx := context.Background()
	var client crm.Client
	if factory.UsesOAuth(provider) {
		client, err = app.authorize(ctx, provider, !*noBrowser)
	} else {
		client, err = app.connectWithToken(ctx, provider, *apiKey, *instanceURL)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	status := client.ValidateConnection(ctx)
	if !status.Connected {
		return fmt.Errorf("connection check failed: %s", status.Error)
	}

	checked := status.CheckedAt
	conn := &db.Connection{
		OrgID:           app.OrgID,
		Provider:        provider,
		Credentials:     client.Credentials(),
		Status:          models.StatusConnected,
		Account:         status.Account,
		InstanceURL:     status.InstanceURL,
		LastValidatedAt: &checked,
	}
	if err := db.UpsertConnection(app.DB, conn); err != nil {
		return err
	}

	app.printf("✓ Connected to %s", provider)
	if status.Account != "" {
		app.printf(" as %s", status.Account)
	}
	app.printf("\n")
	return nil
}

func (a *App) connectWithToken(ctx context.Context, provider models.Provider, apiKey, instanceURL string) (crm.Client, error) {
	creds := a.Config.Credentials(provider)
	if apiKey != "" {
		creds.APIKey = apiKey
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("--api-key is required for %s", provider)
	}
	creds.InstanceURL = instanceURL

	client, err := a.newClient(provider, creds, a.Config.ClientOptions(provider, a.logger())...)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return client, nil
}

type callbackResult struct {
	code string
	err  error
}

// authorize runs the authorization code flow against a loopback listener on
// the configured redirect URI.
func (a *App) authorize(ctx context.Context, provider models.Provider, launch bool) (crm.Client, error) {
	if err := a.Config.Validate(provider); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", provider, err)
	}

	creds := a.Config.Credentials(provider)
	redirect, err := url.Parse(creds.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}

	client, err := a.newClient(provider, creds, a.Config.ClientOptions(provider, a.logger())...)
	if err != nil {
		return nil, err
	}
	oauth, ok := client.(crm.OAuthClient)
	if !ok {
		client.Close()
		return nil, fmt.Errorf("%s does not support the authorization code flow", provider)
	}

	state := uuid.New().String()
	results := make(chan callbackResult, 1)

	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("authorization state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("no authorization code received")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger().Error("callback server failed", zap.Error(err))
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := oauth.AuthorizationURL(state)
	a.printf("Opening browser for %s authorization...\n", provider)
	a.printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	if launch {
		_ = openBrowser(authURL)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-time.After(authorizationTimeout):
		res.err = fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		client.Close()
		return nil, res.err
	}

	if err := oauth.ExchangeCode(ctx, res.code); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return client, nil
}

// StatusCommand checks one connection, or lists all of them.
func StatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return listConnections(app)
	}

	provider, err := parseProvider(fs.Args(), "status")
	if err != nil {
		return err
	}
	client, err := app.Client(app.OrgID, provider)
	if err != nil {
		return err
	}
	defer client.Close()

	status := client.ValidateConnection(context.Background())
	if err := db.UpdateConnectionStatus(app.DB, app.OrgID, status); err != nil {
		return err
	}

	if !status.Connected {
		app.printf("✗ %s: %s\n", provider, status.Error)
		return nil
	}
	app.printf("✓ %s connected", provider)
	if status.Account != "" {
		app.printf(" (%s)", status.Account)
	}
	app.printf(" in %s\n", status.Latency.Round(time.Millisecond))
	return nil
}

func listConnections(app *App) error {
	conns, err := db.ListConnections(app.DB, app.OrgID)
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		app.printf("No connections for %s\n", app.OrgID)
		return nil
	}

	w := tabwriter.NewWriter(app.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATUS\tACCOUNT\tLAST CHECKED")
	for _, c := range conns {
		checked := "-"
		if c.LastValidatedAt != nil {
			checked = c.LastValidatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Provider, c.Status, c.Account, checked)
	}
	return w.Flush()
}

// DisconnectCommand revokes the provider token where possible and clears the
// stored credentials. Sync history is kept.
func DisconnectCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	_ = fs.Parse(args)

	provider, err := parseProvider(fs.Args(), "disconnect")
	if err != nil {
		return err
	}
	client, err := app.Client(app.OrgID, provider)
	if err != nil {
		return err
	}
	defer client.Close()

	switch err := client.RevokeToken(context.Background()); {
	case errors.Is(err, crm.ErrNotSupported):
		app.printf("Note: %v\n", err)
	case err != nil:
		app.logger().Warn("token revocation failed", zap.String("provider", string(provider)), zap.Error(err))
		app.printf("Warning: token revocation failed: %v\n", err)
	}

	if err := db.MarkDisconnected(app.DB, app.OrgID, provider); err != nil {
		return err
	}
	app.printf("✓ Disconnected from %s\n", provider)
	return nil
}
