// ABOUTME: Terminal dashboard using bubbletea framework
// ABOUTME: Shows every CRM connection with its last run and triggers syncs interactively
package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/crmsync/models"
)

// SyncFunc runs one sync for provider and stores its outcome.
type SyncFunc func(ctx context.Context, provider models.Provider) (*models.SyncResult, error)

// Model is the main bubbletea model
type Model struct {
	db      *sql.DB
	orgID   string
	runSync SyncFunc

	rows     []ProviderRow
	selected int
	syncing  map[models.Provider]bool
	messages []string
	spinner  spinner.Model

	width  int
	height int
	err    error
}

// SyncCompleteMsg is sent when a sync started from the dashboard finishes.
type SyncCompleteMsg struct {
	Provider models.Provider
	Result   *models.SyncResult
	Error    error
}

// NewModel creates a dashboard for orgID.
func NewModel(db *sql.DB, orgID string, runSync SyncFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncingStyle

	m := Model{
		db:      db,
		orgID:   orgID,
		runSync: runSync,
		syncing: make(map[models.Provider]bool),
		spinner: s,
		width:   80,
		height:  24,
	}
	m.loadRows()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeys(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case SyncCompleteMsg:
		m.handleSyncComplete(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case "enter":
		if m.selected >= len(m.rows) {
			return m, nil
		}
		row := m.rows[m.selected]
		if m.syncing[row.Provider] {
			return m, nil
		}
		if row.Status != models.StatusConnected {
			m.addMessage(fmt.Sprintf("%s is not connected. Run: crmsync connect %s", displayName(row.Provider), row.Provider))
			return m, nil
		}
		m.syncing[row.Provider] = true
		m.addMessage(fmt.Sprintf("Starting %s sync...", displayName(row.Provider)))
		return m, m.syncProvider(row.Provider)
	case "r":
		m.loadRows()
	}
	return m, nil
}

func (m Model) syncProvider(provider models.Provider) tea.Cmd {
	runSync := m.runSync
	return func() tea.Msg {
		result, err := runSync(context.Background(), provider)
		return SyncCompleteMsg{Provider: provider, Result: result, Error: err}
	}
}

func (m *Model) handleSyncComplete(msg SyncCompleteMsg) {
	m.syncing[msg.Provider] = false

	switch {
	case msg.Error != nil:
		m.addMessage(fmt.Sprintf("✗ %s sync failed: %v", displayName(msg.Provider), msg.Error))
	case msg.Result != nil:
		r := msg.Result
		m.addMessage(fmt.Sprintf("✓ %s sync: %d ok, %d failed, %d skipped, %d conflicts",
			displayName(msg.Provider), r.RecordsSuccess, r.RecordsFailed, r.RecordsSkipped, len(r.Conflicts)))
	default:
		m.addMessage(fmt.Sprintf("✓ %s sync finished", displayName(msg.Provider)))
	}
	m.loadRows()
}

func (m *Model) addMessage(msg string) {
	timestamp := time.Now().Format("15:04:05")
	m.messages = append(m.messages, fmt.Sprintf("[%s] %s", timestamp, msg))
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	providerStyle = lipgloss.NewStyle().
			Bold(true).
			Width(12)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
