// ABOUTME: Shared state for CLI commands
// ABOUTME: Resolves stored connections into CRM clients that persist refreshed tokens
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/factory"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/web"
)

// App carries what every command needs.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Logger *zap.Logger
	OrgID  string
	Out    io.Writer

	// NewClient builds provider clients. Defaults to factory.New.
	NewClient func(provider models.Provider, creds models.Credentials, opts ...crm.Option) (crm.Client, error)
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out(), format, args...)
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *App) newClient(provider models.Provider, creds models.Credentials, opts ...crm.Option) (crm.Client, error) {
	if a.NewClient != nil {
		return a.NewClient(provider, creds, opts...)
	}
	return factory.New(provider, creds, opts...)
}

// clientOptions returns the configured options plus a hook that stores
// refreshed credentials for orgID.
func (a *App) clientOptions(orgID string, provider models.Provider) []crm.Option {
	opts := a.Config.ClientOptions(provider, a.logger())
	return append(opts, crm.WithRefreshHook(func(creds models.Credentials) {
		if err := db.SaveCredentials(a.DB, orgID, provider, creds); err != nil {
			a.logger().Error("failed to store refreshed credentials",
				zap.String("provider", string(provider)), zap.Error(err))
		}
	}))
}

// Client builds a client from the stored connection of orgID to provider.
func (a *App) Client(orgID string, provider models.Provider) (crm.Client, error) {
	conn, err := db.GetConnection(a.DB, orgID, provider)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.Status == models.StatusDisconnected {
		return nil, fmt.Errorf("no %s connection for %s, run 'crmsync connect %s': %w", provider, orgID, provider, db.ErrNotFound)
	}

	creds := conn.Credentials
	app := a.Config.Credentials(provider)
	if creds.ClientID == "" {
		creds.ClientID = app.ClientID
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = app.ClientSecret
	}

	return a.newClient(provider, creds, a.clientOptions(orgID, provider)...)
}

// ClientFactory adapts Client for the webhook server.
func (a *App) ClientFactory() web.ClientFactory {
	return func(ctx context.Context, orgID string, provider models.Provider) (crm.Client, error) {
		return a.Client(orgID, provider)
	}
}

func parseProvider(args []string, command string) (models.Provider, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s requires a provider (%s, %s or %s)", command,
			models.ProviderSalesforce, models.ProviderHubSpot, models.ProviderPipedrive)
	}
	p := models.ParseProvider(args[0])
	if !factory.Supported(p) {
		return "", fmt.Errorf("%w: %q", crm.ErrUnsupportedProvider, args[0])
	}
	return p, nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
