package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ytwritergod/archivetoziptest/staging"
)

// Staging directory statuses.
const (
	StatusLive   = "live"
	StatusStale  = "stale"
	StatusOrphan = "orphan"
)

// Loader fetches the current staging listing.
type Loader func() ([]staging.Listing, error)

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

type loadedMsg struct {
	listings []staging.Listing
	err      error
	at       time.Time
}

// StagingModel shows staging directories with a summary row.
type StagingModel struct {
	load       Loader
	staleAfter time.Duration
	now        func() time.Time

	table    table.Model
	listings []staging.Listing
	err      error
	loadedAt time.Time
	quitting bool
}

// NewStagingModel creates the view. Directories older than staleAfter
// are flagged stale; zero disables the flag.
func NewStagingModel(load Loader, staleAfter time.Duration) StagingModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "User", Width: 12},
			{Title: "Gen", Width: 5},
			{Title: "Session", Width: 10},
			{Title: "Age", Width: 16},
			{Title: "Files", Width: 6},
			{Title: "Size", Width: 10},
			{Title: "Status", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(primaryColor)
	t.SetStyles(styles)

	return StagingModel{load: load, staleAfter: staleAfter, now: time.Now, table: t}
}

// Init implements tea.Model.
func (m StagingModel) Init() tea.Cmd {
	return m.fetch()
}

func (m StagingModel) fetch() tea.Cmd {
	load, now := m.load, m.now
	return func() tea.Msg {
		listings, err := load()
		return loadedMsg{listings: listings, err: err, at: now()}
	}
}

// Update implements tea.Model.
func (m StagingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.listings, m.err, m.loadedAt = msg.listings, msg.err, msg.at
		m.table.SetRows(m.rows())
		return m, nil

	case tea.WindowSizeMsg:
		if h := msg.Height - 12; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.fetch()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// Status classifies one listing as of the last load.
func (m StagingModel) Status(l staging.Listing) string {
	return StatusOf(l, m.staleAfter, m.loadedAt)
}

// StatusOf classifies a listing at now. staleAfter <= 0 never reports stale.
func StatusOf(l staging.Listing, staleAfter time.Duration, now time.Time) string {
	switch {
	case l.Orphan:
		return StatusOrphan
	case staleAfter > 0 && now.Sub(l.CreatedAt) > staleAfter:
		return StatusStale
	}
	return StatusLive
}

func (m StagingModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.listings))
	for _, l := range m.listings {
		session := l.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		rows = append(rows, table.Row{
			fmt.Sprint(l.UserID),
			fmt.Sprint(l.Generation),
			session,
			humanize.RelTime(l.CreatedAt, m.loadedAt, "ago", "from now"),
			fmt.Sprint(l.Files),
			humanize.IBytes(uint64(max(l.Bytes, 0))),
			m.Status(l),
		})
	}
	return rows
}

// View implements tea.Model.
func (m StagingModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Staging Area"))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("r refresh • q quit"))
		return b.String()
	}

	var files int
	var bytes int64
	counts := map[string]int{}
	for _, l := range m.listings {
		files += l.Files
		bytes += l.Bytes
		counts[m.Status(l)]++
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Sessions", fmt.Sprint(len(m.listings))),
		statBox("Files", fmt.Sprint(files)),
		statBox("Size", humanize.IBytes(uint64(max(bytes, 0)))),
		statBox("Stale/Orphan", fmt.Sprintf("%d/%d", counts[StatusStale], counts[StatusOrphan])),
	))
	b.WriteString("\n\n")

	if len(m.listings) == 0 {
		b.WriteString(SuccessStyle.Render("No staging directories."))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ move • r refresh • q quit"))
	return b.String()
}

func statBox(label, value string) string {
	return StatBoxStyle.Render(StatLabelStyle.Render(label) + "\n" + StatValueStyle.Render(value))
}
