// Package tui is the interactive terminal front-end: the same two sliders
// and table as the web page, driven by the keyboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Frontend labels metrics and view events produced by the browser.
const Frontend = "tui"

const maxColumnWidth = 40

var (
	focusedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	blurredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type focus int

const (
	focusSnapshot focus = iota
	focusCutoff
)

type loadedMsg struct {
	out viewer.Outcome
	err error
}

// Model is the bubbletea model of the browser.
type Model struct {
	ctx     context.Context
	page    *viewer.Page
	focus   focus
	table   table.Model
	last    viewer.Outcome
	err     error
	pending int
	height  int
}

// New wraps page. Loads run with ctx.
func New(ctx context.Context, page *viewer.Page) Model {
	t := table.New(table.WithFocused(true), table.WithHeight(20))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)
	return Model{ctx: ctx, page: page, table: t}
}

// Init loads the initially selected snapshot.
func (m Model) Init() tea.Cmd {
	return m.commit(m.page.SnapshotSelector)
}

// commit returns a command that commits s, which runs the page bindings and
// loads the selected snapshot off the UI goroutine.
func (m Model) commit(s *viewer.Slider) tea.Cmd {
	ctx, page := m.ctx, m.page
	return func() tea.Msg {
		s.Commit(ctx)
		out, err := page.Last()
		return loadedMsg{out: out, err: err}
	}
}

func (m Model) focused() *viewer.Slider {
	if m.focus == focusCutoff {
		return m.page.CutoffSelector
	}
	return m.page.SnapshotSelector
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab":
			m.focus = 1 - m.focus
			return m, nil
		case "left", "h", "right", "l":
			s := m.focused()
			delta := s.Step
			if k := msg.String(); k == "left" || k == "h" {
				delta = -delta
			}
			before := s.Value()
			if s.Input(before+delta) == before {
				return m, nil
			}
			m.pending++
			return m, m.commit(s)
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height
		if h := msg.Height - 6; h > 3 {
			m.table.SetHeight(h)
		}
		m.table.SetWidth(msg.Width)
		return m, nil
	case loadedMsg:
		if m.pending > 0 {
			m.pending--
		}
		if msg.out.Stale {
			return m, nil
		}
		m.last, m.err = msg.out, msg.err
		if msg.err == nil {
			m.refresh()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh copies the page's table into the bubbles table.
func (m *Model) refresh() {
	view := m.page.Table.View()
	m.table.SetRows(nil)
	m.table.SetColumns(columns(view.Header, view.Rows))
	rows := make([]table.Row, len(view.Rows))
	for i, r := range view.Rows {
		rows[i] = table.Row(r.Cells)
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

func columns(header []string, rows []render.Row) []table.Column {
	cols := make([]table.Column, len(header))
	for i, title := range header {
		width := lipgloss.Width(title)
		for _, r := range rows {
			if i < len(r.Cells) {
				width = max(width, lipgloss.Width(r.Cells[i]))
			}
		}
		cols[i] = table.Column{Title: title, Width: min(width, maxColumnWidth)}
	}
	return cols
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.sliderLine(focusSnapshot, "Minimum lists (precomputed)", m.page.SnapshotLabel.Text()))
	b.WriteString("\n")
	b.WriteString(m.sliderLine(focusCutoff, "Minimum lists (filter)", m.page.CutoffLabel.Text()))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab switch slider • ←/→ move • ↑/↓ scroll • q quit"))
	return b.String()
}

func (m Model) sliderLine(f focus, name, value string) string {
	line := fmt.Sprintf("%s: %s", name, value)
	if m.focus == f {
		return focusedStyle.Render("> " + line)
	}
	return blurredStyle.Render("  " + line)
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return errorStyle.Render("load failed: " + m.err.Error())
	case m.pending > 0:
		return helpStyle.Render("loading...")
	case m.last.Generation == 0:
		return ""
	}
	cache := "fetched"
	if m.last.CacheHit {
		cache = "cached"
	}
	return helpStyle.Render(fmt.Sprintf("%d rows • %s • %s", m.last.Rows, cache, m.last.Duration.Round(time.Microsecond)))
}

// Run starts the browser on the terminal and blocks until it exits.
func Run(ctx context.Context, page *viewer.Page) error {
	_, err := tea.NewProgram(New(ctx, page), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
