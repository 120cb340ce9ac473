// ABOUTME: Loads dashboard rows from the database
// ABOUTME: One row per supported provider with connection status and latest run
package tui

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

// ProviderRow is what the dashboard shows for one provider.
type ProviderRow struct {
	Provider  models.Provider
	Status    string
	Account   string
	LastError string
	Linked    int
	LastRun   *models.SyncResult
}

func (m *Model) loadRows() {
	rows, err := loadRows(m.db, m.orgID)
	m.err = err
	if err != nil {
		return
	}
	m.rows = rows
	if m.selected >= len(m.rows) {
		m.selected = 0
	}
}

func loadRows(database *sql.DB, orgID string) ([]ProviderRow, error) {
	var rows []ProviderRow
	for _, p := range models.Providers() {
		row := ProviderRow{Provider: p, Status: models.StatusDisconnected}

		conn, err := db.GetConnection(database, orgID, p)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			row.Status = conn.Status
			row.Account = conn.Account
			row.LastError = conn.LastError
		}

		states, err := db.LoadSyncStates(database, orgID, p)
		if err != nil {
			return nil, err
		}
		row.Linked = len(states)

		runs, err := db.ListSyncRuns(database, orgID, p, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			row.LastRun = &runs[0]
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func displayName(p models.Provider) string {
	switch p {
	case models.ProviderSalesforce:
		return "Salesforce"
	case models.ProviderHubSpot:
		return "HubSpot"
	case models.ProviderPipedrive:
		return "Pipedrive"
	}
	return string(p)
}

func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute")
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour")
	default:
		return plural(int(duration.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
