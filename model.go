package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

type scanStreamMsg struct {
	Ch <-chan ScanEvent
}

// scanEventsMsg carries every event that was pending on the stream: the pump
// drains all available events per message so scanner bursts never lag the UI
// by one frame each.
type scanEventsMsg struct {
	Events []ScanEvent
	Closed bool
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Confirm key.Binding
	Sort    key.Binding
	Filter  key.Binding
	View    key.Binding
	Expand  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "clean selected"),
		),
		Sort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filter"),
		),
		View: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "list/tree"),
		),
		Expand: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "expand"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Confirm, k.Sort, k.Filter, k.View, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Expand},
		{k.Sort, k.Filter, k.View, k.Confirm, k.Help, k.Quit},
	}
}

type styles struct {
	title     lipgloss.Style
	subtitle  lipgloss.Style
	chip      lipgloss.Style
	pane      lipgloss.Style
	cursor    lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
	size      lipgloss.Style
	status    lipgloss.Style
	danger    lipgloss.Style
	confirm   lipgloss.Style
	container lipgloss.Style
}

var ui = styles{
	title:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
	subtitle: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	chip:     lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1),
	pane: lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")).
		Padding(0, 1),
	cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(true),
	selected: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
	muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	size:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	status:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	danger:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
	confirm: lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("203")).
		Padding(1, 3),
	container: lipgloss.NewStyle().Padding(0, 1),
}

// model is the presentation layer: it only reads AppState queries and
// forwards input intents into AppState mutators.
type model struct {
	state   *AppState
	scanner *Scanner
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	ctx            context.Context
	stream         <-chan ScanEvent
	lastFound      string
	visited        int
	scanErr        error
	elapsed        time.Duration
	confirmDeletes bool

	width  int
	height int
}

func newModel(ctx context.Context, scanner *Scanner, state *AppState, confirmDeletes bool) model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	return model{
		state:          state,
		scanner:        scanner,
		keys:           newKeyMap(),
		help:           help.New(),
		spinner:        sp,
		ctx:            ctx,
		confirmDeletes: confirmDeletes,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scanStartCmd(m.ctx, m.scanner, m.state.ScanRoot))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case spinner.TickMsg:
		if m.state.Scanning() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case scanStreamMsg:
		m.stream = msg.Ch
		cmds = append(cmds, drainScanCmd(msg.Ch))

	case scanEventsMsg:
		for _, event := range msg.Events {
			switch event := event.(type) {
			case ScanningEvent:
				m.visited = event.Visited
			case ProjectFoundEvent:
				m.state.AddProject(event.Project)
				m.lastFound = event.Project.RootPath
			case ScanCompleteEvent:
				m.state.FinishScan()
				m.scanErr = event.Err
				m.elapsed = event.Elapsed
				m.visited = event.Visited
			}
		}
		if !msg.Closed && m.stream != nil {
			cmds = append(cmds, drainScanCmd(m.stream))
		}

	case tea.KeyMsg:
		if m.state.ShowConfirmation {
			switch msg.String() {
			case "y", "Y", "enter":
				if m.state.SelectedCount() > 0 {
					m.state.ConfirmDeletion()
					return m, tea.Quit
				}
				m.state.ShowConfirmation = false
			case "n", "N", "esc", "q":
				m.state.ShowConfirmation = false
			default:
				if m.state.SelectedCount() == 0 {
					m.state.ShowConfirmation = false
				}
			}
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			m.state.MoveUp()
		case key.Matches(msg, m.keys.Down):
			m.state.MoveDown()
		case key.Matches(msg, m.keys.Select):
			m.state.ToggleSelection()
		case key.Matches(msg, m.keys.Sort):
			m.state.ToggleSort()
		case key.Matches(msg, m.keys.Filter):
			m.state.CycleFilter()
		case key.Matches(msg, m.keys.View):
			m.state.ToggleViewMode()
		case key.Matches(msg, m.keys.Expand):
			m.state.ToggleExpand()
		case key.Matches(msg, m.keys.Confirm):
			if !m.confirmDeletes && m.state.SelectedCount() > 0 {
				m.state.ConfirmDeletion()
				return m, tea.Quit
			}
			m.state.ShowConfirmation = true
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	if m.state.ShowConfirmation {
		return m.confirmView()
	}

	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.headerView(),
		m.projectsView(),
		m.detailsView(),
		m.statusView(),
		m.help.View(m.keys),
	)
	return ui.container.Render(view)
}

func (m model) headerView() string {
	title := ui.title.Render("spektr")
	root := ui.subtitle.Render(m.state.ScanRoot)
	chips := lipgloss.JoinHorizontal(
		lipgloss.Left,
		ui.chip.Render("sort: "+m.state.SortMode().String()),
		" ",
		ui.chip.Render("filter: "+m.state.FilterLabel()),
		" ",
		ui.chip.Render("view: "+m.state.ViewMode().String()),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", root),
		chips,
	)
}

func (m model) projectsView() string {
	var lines []string
	if m.state.ViewMode() == ViewTree {
		lines = m.treeLines()
	} else {
		lines = m.listLines()
	}

	if len(lines) == 0 {
		if m.state.Scanning() {
			lines = []string{ui.muted.Render("Scanning…")}
		} else {
			lines = []string{ui.muted.Render("No projects found")}
		}
	}

	height := m.paneHeight()
	lines = window(lines, m.state.Cursor(), height)
	return ui.pane.Width(m.width - 4).Height(height).Render(strings.Join(lines, "\n"))
}

func (m model) listLines() []string {
	projects := m.state.VisibleProjects()
	lines := make([]string, 0, len(projects))
	for idx, project := range projects {
		checkbox := "[ ]"
		if m.state.IsSelected(idx) {
			checkbox = "[✓]"
		}
		rel := relativeLabel(m.state.ScanRoot, project.RootPath)
		line := fmt.Sprintf("%s %s %s  %s",
			checkbox,
			strategyGlyph(project.StrategyName),
			rel,
			ui.size.Render(formatBytes(project.TotalSize)),
		)
		lines = append(lines, m.styleRow(line, idx, m.state.IsSelected(idx)))
	}
	return lines
}

func (m model) treeLines() []string {
	flat := m.state.FlatTree()
	lines := make([]string, 0, len(flat))
	for idx, entry := range flat {
		node := entry.Node
		checkbox := "[ ]"
		if node.Checked {
			checkbox = "[✓]"
		}
		label := node.Label()
		if node.Project != nil {
			label = fmt.Sprintf("%s %s", strategyGlyph(node.Project.StrategyName), label)
		} else if node.Collapsed {
			label += "/…"
		} else {
			label += "/"
		}
		line := fmt.Sprintf("%s%s %s  %s",
			entry.GuidePrefix,
			checkbox,
			label,
			ui.size.Render(formatBytes(node.TotalSize())),
		)
		lines = append(lines, m.styleRow(line, idx, node.Checked))
	}
	return lines
}

func (m model) styleRow(line string, idx int, selected bool) string {
	if idx == m.state.Cursor() {
		return ui.cursor.Render(line)
	}
	if selected {
		return ui.selected.Render(line)
	}
	return line
}

func (m model) detailsView() string {
	project, ok := m.state.CurrentProject()
	if !ok {
		return ui.pane.Width(m.width - 4).Render(ui.muted.Render("No project under cursor"))
	}
	rebuild := "~1-3 mins"
	for _, strategy := range m.scanner.strategies {
		if strategy.Name() == project.StrategyName {
			rebuild = strategy.RebuildEstimate()
		}
	}
	lines := []string{
		fmt.Sprintf("Path: %s", project.RootPath),
		fmt.Sprintf("Type: %s %s   Risk: %s", strategyGlyph(project.StrategyName), project.StrategyName, project.Risk),
		fmt.Sprintf("Size: %s across %d target(s)   Rebuild: %s",
			ui.size.Render(formatBytes(project.TotalSize)), len(project.Targets), rebuild),
	}
	return ui.pane.Width(m.width - 4).Render(strings.Join(lines, "\n"))
}

func (m model) statusView() string {
	if m.state.Scanning() {
		line := fmt.Sprintf("%s Scanning… visited %d · found %d",
			m.spinner.View(), m.visited, m.state.TotalProjects())
		if m.lastFound != "" {
			line += ui.muted.Render("  " + relativeLabel(m.state.ScanRoot, m.lastFound))
		}
		return ui.status.Render(line)
	}

	parts := []string{
		fmt.Sprintf("Projects: %d/%d", m.state.VisibleCount(), m.state.TotalProjects()),
		fmt.Sprintf("Selected: %d (%s)", m.state.SelectedCount(), formatBytes(m.state.TotalSelectedSize())),
	}
	if m.elapsed > 0 {
		parts = append(parts, fmt.Sprintf("Scan: %s", m.elapsed.Truncate(10*time.Millisecond)))
	}
	status := ui.status.Render(strings.Join(parts, " · "))
	if m.scanErr != nil {
		status = ui.danger.Render(fmt.Sprintf("Scan error: %v", m.scanErr))
	}
	return status
}

func (m model) confirmView() string {
	var body string
	if m.state.SelectedCount() == 0 {
		body = lipgloss.JoinVertical(lipgloss.Center,
			ui.danger.Render("No projects selected"),
			"",
			"Select at least one project with space.",
			"",
			ui.muted.Render("Press any key to continue"),
		)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Center,
			ui.danger.Render("Confirm deletion"),
			"",
			fmt.Sprintf("Delete %d project(s) totaling %s?",
				m.state.SelectedCount(),
				formatBytes(m.state.TotalSelectedSize())),
			"",
			ui.danger.Render("This cannot be undone."),
			"",
			ui.muted.Render("y confirm · n cancel"),
		)
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, ui.confirm.Render(body))
}

func (m model) paneHeight() int {
	header := lipgloss.Height(m.headerView())
	details := lipgloss.Height(m.detailsView())
	status := lipgloss.Height(m.statusView())
	helpHeight := lipgloss.Height(m.help.View(m.keys))
	available := m.height - header - details - status - helpHeight - 3
	return max(available, 5)
}

// window slices lines so the cursor stays visible within height rows.
func window(lines []string, cursor, height int) []string {
	if len(lines) <= height {
		return lines
	}
	offset := cursor - height/2
	offset = max(offset, 0)
	offset = min(offset, len(lines)-height)
	return lines[offset : offset+height]
}

func relativeLabel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func formatBytes(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}
	value := float64(size)
	for _, unit := range units {
		value /= 1024
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
	}
	return fmt.Sprintf("%.1f %s", value, units[len(units)-1])
}

// scanStartCmd launches the scan goroutine and hands its stream to Update.
// The goroutine owns the channel and closes it when the scan returns.
func scanStartCmd(ctx context.Context, scanner *Scanner, root string) tea.Cmd {
	return func() tea.Msg {
		ch := make(chan ScanEvent, 64)
		go func() {
			defer close(ch)
			if _, err := scanner.Scan(ctx, root, ch); err != nil {
				logrus.WithError(err).Error("scan failed")
			}
		}()
		return scanStreamMsg{Ch: ch}
	}
}

// drainScanCmd blocks for one event, then sweeps up everything else already
// pending, so a burst of events lands in a single Update.
func drainScanCmd(ch <-chan ScanEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return scanEventsMsg{Closed: true}
		}
		events := []ScanEvent{event}
		for {
			select {
			case next, ok := <-ch:
				if !ok {
					return scanEventsMsg{Events: events, Closed: true}
				}
				events = append(events, next)
			default:
				return scanEventsMsg{Events: events}
			}
		}
	}
}
