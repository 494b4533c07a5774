package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/linecook/internal/export"
	"github.com/sadopc/linecook/internal/session"
	"github.com/sadopc/linecook/internal/stats"
	"github.com/sadopc/linecook/internal/store"
)

// Options configures the UI.
type Options struct {
	ExportDir        string
	MinTicketSeconds int64
}

// App is the root Bubble Tea model.
type App struct {
	svc       *session.Service
	stats     *stats.Aggregator
	exportDir string
	width     int
	height    int

	session       *session.Session
	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	login   loginModel
	kitchen kitchenModel
	shifts  shiftsModel
	reports reportsModel
	cooks   cooksModel

	help      help.Model
	status    string
	statusErr bool
	now       time.Time
}

func NewApp(svc *session.Service, st *store.Store, agg *stats.Aggregator, opts Options) App {
	h := help.New()
	h.ShowAll = false

	kitchen := newKitchenModel(svc, agg, st, opts.MinTicketSeconds)
	kitchen.tickets = svc.Tickets()

	return App{
		svc:        svc,
		stats:      agg,
		exportDir:  opts.ExportDir,
		session:    svc.Current(),
		activeView: viewShifts,
		login:      newLoginModel(svc),
		kitchen:    kitchen,
		shifts:     newShiftsModel(st, agg.Location()),
		reports:    newReportsModel(agg),
		cooks:      newCooksModel(svc, st),
		help:       h,
		now:        time.Now(),
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tickCmd()}
	if a.session == nil {
		return tea.Batch(cmds...)
	}
	if a.session.IsManager() {
		cmds = append(cmds, a.shifts.refresh(), a.cooks.refresh())
		return tea.Batch(cmds...)
	}
	// Tickets resumed from a snapshot need their refresh restarted.
	_, cmd := a.kitchen.signedIn()
	return tea.Batch(append(cmds, cmd)...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.login.setSize(a.width, contentHeight)
		a.kitchen.setSize(a.width, contentHeight)
		a.shifts.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.cooks.setSize(a.width, contentHeight)
		a.reports.buildChart()
		return a, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return a, tea.Quit
		}
		if a.session == nil {
			var cmd tea.Cmd
			a.login, cmd = a.login.update(msg)
			return a, cmd
		}
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		if key.Matches(msg, keys.Help) {
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		}
		if a.session.IsManager() {
			return a.updateManagerKeys(msg)
		}

	case tickMsg:
		a.now = time.Time(msg)
		return a, tickCmd()

	case ticketTickMsg, liveStatsMsg:
		var cmd tea.Cmd
		a.kitchen, cmd = a.kitchen.update(msg)
		return a, cmd

	case cooksDataMsg:
		a.kitchen.cooks = msg.cooks
		var cmd tea.Cmd
		a.cooks, cmd = a.cooks.update(msg)
		return a, cmd

	case shiftsDataMsg:
		var cmd tea.Cmd
		a.shifts, cmd = a.shifts.update(msg)
		return a, cmd

	case reportsDataMsg:
		var cmd tea.Cmd
		a.reports, cmd = a.reports.update(msg)
		return a, cmd

	case signedInMsg:
		return a.signIn(msg.session)

	case signedOutMsg:
		name := ""
		if a.session != nil {
			name = a.session.Name
		}
		a = a.signOut()
		a.setStatus(fmt.Sprintf("Goodbye, %s", name), false)
		return a, nil

	case AutoLogoutMsg:
		if !msg.SignedOut {
			return a, nil
		}
		a = a.signOut()
		a.setStatus(fmt.Sprintf("Signed out automatically at %s", msg.Cutoff.In(a.stats.Location()).Format("3:04PM")), false)
		return a, nil

	case statusMsg:
		a.setStatus(msg.text, msg.isError)
		return a, nil

	case exportDoneMsg:
		a.setStatus("Exported to "+msg.path, false)
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) updateManagerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Export):
		a.exportPicking = true
		a.exportCursor = 0
		return a, nil
	case key.Matches(msg, keys.ClockOut):
		return a, clockOut(a.svc)
	case key.Matches(msg, keys.Tab1):
		a.activeView = viewShifts
		return a, a.shifts.refresh()
	case key.Matches(msg, keys.Tab2):
		a.activeView = viewReports
		return a, a.reports.refresh()
	case key.Matches(msg, keys.Tab3):
		a.activeView = viewCooks
		return a, a.cooks.refresh()
	case key.Matches(msg, keys.Tab):
		a.activeView = (a.activeView + 1) % viewState(len(viewNames))
		return a, a.refreshCurrentView()
	}
	return a.updateActiveView(msg)
}

func (a App) signIn(sess session.Session) (tea.Model, tea.Cmd) {
	a.session = &sess
	a.exportPicking = false
	a.setStatus(fmt.Sprintf("Welcome, %s", sess.Name), false)
	if sess.IsManager() {
		a.activeView = viewShifts
		return a, tea.Batch(a.shifts.refresh(), a.cooks.refresh())
	}
	var cmd tea.Cmd
	a.kitchen, cmd = a.kitchen.signedIn()
	return a, cmd
}

func (a App) signOut() App {
	a.session = nil
	a.exportPicking = false
	a.showHelp = false
	a.help.ShowAll = false
	a.kitchen = a.kitchen.signedOut()
	a.cooks.formActive = false
	a.cooks.form = nil
	a.login.input.Reset()
	return a
}

func (a *App) setStatus(text string, isError bool) {
	a.status = text
	a.statusErr = isError
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case a.session == nil:
		a.login, cmd = a.login.update(msg)
	case !a.session.IsManager():
		a.kitchen, cmd = a.kitchen.update(msg)
	case a.activeView == viewShifts:
		a.shifts, cmd = a.shifts.update(msg)
	case a.activeView == viewReports:
		a.reports, cmd = a.reports.update(msg)
	case a.activeView == viewCooks:
		a.cooks, cmd = a.cooks.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch {
	case a.session == nil:
		return false
	case !a.session.IsManager():
		return a.kitchen.formActive
	case a.activeView == viewCooks:
		return a.cooks.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewShifts:
		return a.shifts.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewCooks:
		return a.cooks.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch {
	case a.session == nil:
		content = a.login.view()
	case !a.session.IsManager():
		content = a.kitchen.view()
	case a.activeView == viewShifts:
		content = a.shifts.view()
	case a.activeView == viewReports:
		content = a.reports.view()
	case a.activeView == viewCooks:
		content = a.cooks.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := max(1, a.height-headerHeight-footerHeight)

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("linecook")

	var middle string
	switch {
	case a.session == nil:
	case a.session.IsManager():
		var tabs []string
		for i, name := range viewNames {
			if viewState(i) == a.activeView {
				tabs = append(tabs, activeTabStyle.Render(name))
			} else {
				tabs = append(tabs, inactiveTabStyle.Render(name))
			}
		}
		middle = lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)
	default:
		middle = highlightStyle.Render(a.session.Name) + mutedStyle.Render("  "+a.session.Role)
	}

	clock := mutedStyle.Render(a.now.In(a.stats.Location()).Format("Mon Jan 02  3:04:05PM"))

	gap := max(1, a.width-lipgloss.Width(title)-lipgloss.Width(middle)-lipgloss.Width(clock)-6)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, "  ", middle, spacer, clock),
	)
}

func (a App) renderFooter() string {
	var helpView string
	switch {
	case a.session == nil:
		helpView = a.help.ShortHelpView([]key.Binding{keys.Enter, keys.Back, keys.Quit})
	case a.session.IsManager():
		helpView = a.help.View(managerKeys{keys})
	default:
		helpView = a.help.View(keys)
	}

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	// Open ticket indicator in footer
	ticketInfo := ""
	if a.session != nil && !a.session.IsManager() {
		if n := len(a.kitchen.running()); n > 0 {
			ticketInfo = successStyle.Render(fmt.Sprintf(" ● %d open", n))
		}
		ticketInfo += mutedStyle.Render(" on shift " + formatDuration(max(0, a.now.Sub(a.session.Started))))
	}

	left := footerStyle.Render(helpView)
	right := ticketInfo + status

	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	title := titleStyle.Render(fmt.Sprintf("Export %s Performance", a.reports.group.View()))
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range export.Formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(export.Formats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(export.Formats[a.exportCursor])
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func (a App) doExport(format string) tea.Cmd {
	agg, g, dir := a.stats, a.reports.group, a.exportDir
	return func() tea.Msg {
		exp, err := agg.ExportRange(g)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		if len(exp.Rows) == 0 {
			return statusMsg{text: "Nothing to export for this range", isError: true}
		}
		path, err := export.Write(exp, dir, format)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
