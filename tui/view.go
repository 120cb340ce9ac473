// ABOUTME: Renders the sync dashboard
// ABOUTME: Provider table, recent activity log and key help
package tui

import (
	"fmt"
	"strings"

	"github.com/harperreed/crmsync/models"
)

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("CRM Sync Dashboard"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("Error loading connections: " + m.err.Error()))
		s.WriteString("\n\n")
	}

	s.WriteString(headerStyle.Render("Connections"))
	s.WriteString("\n\n")

	for i, row := range m.rows {
		s.WriteString(m.renderRow(i, row))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(m.messages) > 0 {
		s.WriteString(headerStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := 0
		if len(m.messages) > 5 {
			start = len(m.messages) - 5
		}
		for _, msg := range m.messages[start:] {
			s.WriteString(messageStyle.Render("  " + msg))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	help := []string{
		"↑/↓: Select provider",
		"Enter: Sync selected",
		"r: Refresh",
		"q: Quit",
	}
	s.WriteString(helpStyle.Render(strings.Join(help, " • ")))

	return s.String()
}

func (m Model) renderRow(i int, row ProviderRow) string {
	var b strings.Builder

	name := providerStyle.Render(displayName(row.Provider))
	if i == m.selected {
		b.WriteString("▶ ")
		b.WriteString(selectedStyle.Render(name))
	} else {
		b.WriteString("  ")
		b.WriteString(name)
	}

	switch {
	case m.syncing[row.Provider]:
		b.WriteString(syncingStyle.Render("  " + m.spinner.View() + " Syncing..."))
	case row.Status == models.StatusError:
		b.WriteString(errorStyle.Render("  ✗ Error"))
		if row.LastError != "" {
			b.WriteString(errorStyle.Render(": " + row.LastError))
		}
	case row.Status == models.StatusConnected:
		label := "  ✓ Connected"
		if row.Account != "" {
			label += " as " + row.Account
		}
		b.WriteString(connectedStyle.Render(label))
	default:
		b.WriteString(messageStyle.Render("  Not connected"))
	}

	if row.Linked > 0 {
		b.WriteString(messageStyle.Render(fmt.Sprintf(" • %d linked", row.Linked)))
	}
	if run := row.LastRun; run != nil {
		summary := fmt.Sprintf(" • Last run %s: %d ok, %d failed", formatTimeSince(run.StartedAt), run.RecordsSuccess, run.RecordsFailed)
		if run.Cancelled {
			summary += ", cancelled"
		}
		b.WriteString(messageStyle.Render(summary))
	}

	return b.String()
}
