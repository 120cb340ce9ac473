// ABOUTME: Dashboard subcommand
// ABOUTME: Launches the interactive sync dashboard
package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"github.com/harperreed/crmsync/tui"
)

// DashboardCommand runs the full-screen dashboard until the user quits.
func DashboardCommand(app *App, args []string) error {
	model := tui.NewModel(app.DB, app.OrgID, app.dashboardSync)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}

// dashboardSync runs a default bidirectional sync and stores it. Engine logs
// stay off because they would draw over the screen.
func (a *App) dashboardSync(ctx context.Context, provider models.Provider) (*models.SyncResult, error) {
	req, err := db.LoadSyncRequest(a.DB, a.OrgID, provider)
	if err != nil {
		return nil, err
	}

	client, err := a.Client(a.OrgID, provider)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	outcome, runErr := sync.NewEngine(client).Run(ctx, req)
	if err := db.SaveSyncOutcome(a.DB, a.OrgID, outcome); err != nil {
		return nil, err
	}
	return &outcome.Result, runErr
}
