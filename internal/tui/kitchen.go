package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/linecook/internal/session"
	"github.com/sadopc/linecook/internal/stats"
	"github.com/sadopc/linecook/internal/store"
)

// cookLister lists the cooks that tickets can be handed to.
type cookLister interface {
	ListCooks() ([]store.Cook, error)
}

type kitchenAction int

const (
	actionNone kitchenAction = iota
	actionCancel
	actionHandOff
)

type kitchenModel struct {
	svc       *session.Service
	stats     *stats.Aggregator
	cookList  cookLister
	refresh   *refresher
	minTicket int64
	width     int
	height    int

	tickets []session.Ticket
	cursor  int // index into the running tickets
	cooks   []store.Cook
	live    liveStatsMsg

	formActive bool
	form       *huh.Form
	action     kitchenAction
	target     int64 // ticket the form acts on

	// Form values as pointers (survive value copies)
	approvalPin *string
	handTo      *int64
}

func newKitchenModel(svc *session.Service, agg *stats.Aggregator, cl cookLister, minTicket int64) kitchenModel {
	pin, to := "", int64(0)
	return kitchenModel{
		svc:         svc,
		stats:       agg,
		cookList:    cl,
		refresh:     newRefresher(),
		minTicket:   minTicket,
		approvalPin: &pin,
		handTo:      &to,
		live:        emptyLive(),
	}
}

func emptyLive() liveStatsMsg {
	return liveStatsMsg{fastest: stats.Placeholder, slowest: stats.Placeholder, average: stats.Placeholder}
}

func (k *kitchenModel) setSize(w, h int) {
	k.width = w
	k.height = h
}

// signedIn loads the board for a new cook session and restarts the refresh
// of any ticket carried over from before.
func (k kitchenModel) signedIn() (kitchenModel, tea.Cmd) {
	k.tickets = k.svc.Tickets()
	k.cursor = 0
	k.live = emptyLive()
	cmds := []tea.Cmd{k.loadLive(), k.loadCooks()}
	for _, t := range k.tickets {
		if t.Running {
			cmds = append(cmds, k.refresh.watch(k.svc, t.ID))
		}
	}
	return k, tea.Batch(cmds...)
}

func (k kitchenModel) signedOut() kitchenModel {
	k.tickets = nil
	k.cursor = 0
	k.formActive = false
	k.form = nil
	k.action = actionNone
	k.live = emptyLive()
	return k
}

func (k kitchenModel) loadLive() tea.Cmd {
	cur := k.svc.Current()
	if cur == nil || cur.IsManager() {
		return nil
	}
	agg := k.stats
	pin := cur.Pin
	return func() tea.Msg {
		live, err := agg.Today(pin)
		if err != nil {
			return errStatus(err)
		}
		f, s, a := live.Text()
		return liveStatsMsg{fastest: f, slowest: s, average: a, count: live.Count}
	}
}

func (k kitchenModel) loadCooks() tea.Cmd {
	cl := k.cookList
	return func() tea.Msg {
		cooks, err := cl.ListCooks()
		if err != nil {
			return errStatus(err)
		}
		return cooksDataMsg{cooks: cooks}
	}
}

func (k kitchenModel) running() []session.Ticket {
	var out []session.Ticket
	for _, t := range k.tickets {
		if t.Running {
			out = append(out, t)
		}
	}
	return out
}

func (k kitchenModel) selected() (session.Ticket, bool) {
	run := k.running()
	if k.cursor < 0 || k.cursor >= len(run) {
		return session.Ticket{}, false
	}
	return run[k.cursor], true
}

func (k kitchenModel) cookName(pin int64) string {
	for _, c := range k.cooks {
		if c.Pin == pin {
			return c.Name
		}
	}
	return fmt.Sprintf("#%d", pin)
}

func (k kitchenModel) update(msg tea.Msg) (kitchenModel, tea.Cmd) {
	if k.formActive && k.form != nil {
		return k.updateForm(msg)
	}

	switch msg := msg.(type) {
	case ticketTickMsg:
		k.tickets = k.svc.Tickets()
		return k, k.refresh.next(msg)

	case liveStatsMsg:
		k.live = msg
		return k, nil

	case cooksDataMsg:
		k.cooks = msg.cooks
		return k, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if k.cursor > 0 {
				k.cursor--
			}
		case key.Matches(msg, keys.Down):
			if k.cursor < len(k.running())-1 {
				k.cursor++
			}
		case key.Matches(msg, keys.NewTicket):
			return k.startTicket()
		case key.Matches(msg, keys.Sell):
			return k.sell()
		case key.Matches(msg, keys.Cancel):
			if t, ok := k.selected(); ok {
				return k.showApprovalForm(actionCancel, t.ID)
			}
		case key.Matches(msg, keys.HandOff):
			if t, ok := k.selected(); ok {
				return k.showApprovalForm(actionHandOff, t.ID)
			}
		case key.Matches(msg, keys.ClockOut):
			return k, k.clockOut()
		}
	}
	return k, nil
}

func (k kitchenModel) startTicket() (kitchenModel, tea.Cmd) {
	t, err := k.svc.StartTicket()
	if err != nil {
		return k, func() tea.Msg { return errStatus(err) }
	}
	k.tickets = k.svc.Tickets()
	k.cursor = len(k.running()) - 1
	return k, tea.Batch(
		k.refresh.watch(k.svc, t.ID),
		func() tea.Msg { return statusMsg{text: fmt.Sprintf("Ticket #%d started", t.ID)} },
	)
}

func (k kitchenModel) sell() (kitchenModel, tea.Cmd) {
	t, ok := k.selected()
	if !ok {
		return k, nil
	}
	closed, ok, err := k.svc.CloseTicket(t.ID, session.Sold, false)
	k.tickets = k.svc.Tickets()
	k.clampCursor()
	if err != nil {
		return k, func() tea.Msg { return errStatus(err) }
	}
	if !ok {
		return k, nil
	}

	text := fmt.Sprintf("Ticket #%d sold in %s", closed.ID, stats.FormatSeconds(closed.Elapsed))
	if !closed.Persisted {
		text += fmt.Sprintf(" (under %s, not counted)", stats.FormatSeconds(k.minTicket))
	}
	return k, tea.Batch(
		k.loadLive(),
		func() tea.Msg { return statusMsg{text: text} },
	)
}

func (k kitchenModel) clockOut() tea.Cmd {
	return clockOut(k.svc)
}

func (k *kitchenModel) clampCursor() {
	if n := len(k.running()); k.cursor >= n {
		k.cursor = max(0, n-1)
	}
}

func (k kitchenModel) showApprovalForm(action kitchenAction, id int64) (kitchenModel, tea.Cmd) {
	*k.approvalPin = ""
	k.action = action
	k.target = id

	approval := huh.NewInput().
		Title("Manager PIN").
		EchoMode(huh.EchoModePassword).
		CharLimit(pinLength).
		Value(k.approvalPin)

	switch action {
	case actionHandOff:
		cur := k.svc.Current()
		var opts []huh.Option[int64]
		for _, c := range k.cooks {
			if cur != nil && c.Pin == cur.Pin {
				continue
			}
			opts = append(opts, huh.NewOption(c.Name, c.Pin))
		}
		if len(opts) == 0 {
			k.action = actionNone
			return k, func() tea.Msg { return statusMsg{text: "No other cooks to hand off to", isError: true} }
		}
		*k.handTo = opts[0].Value
		k.form = huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[int64]().Title("Hand off to").Options(opts...).Value(k.handTo),
				approval,
			),
		)
	default:
		k.form = huh.NewForm(huh.NewGroup(approval))
	}
	k.form = k.form.WithShowHelp(true).WithShowErrors(true)

	k.formActive = true
	return k, k.form.Init()
}

func (k kitchenModel) updateForm(msg tea.Msg) (kitchenModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			k.formActive = false
			k.form = nil
			k.action = actionNone
			return k, nil
		}
	}

	form, cmd := k.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		k.form = f
	}

	if k.form.State == huh.StateCompleted {
		k.formActive = false
		k.form = nil
		return k.finishApproval()
	}
	return k, cmd
}

// finishApproval runs the action the approval form was opened for.
func (k kitchenModel) finishApproval() (kitchenModel, tea.Cmd) {
	action := k.action
	k.action = actionNone

	manager, approved := k.svc.VerifyManager(*k.approvalPin)
	*k.approvalPin = ""
	if !approved {
		return k, func() tea.Msg { return errStatus(session.ErrNotManager) }
	}

	var (
		text string
		err  error
	)
	switch action {
	case actionCancel:
		var closed session.Ticket
		var ok bool
		closed, ok, err = k.svc.CloseTicket(k.target, session.Canceled, true)
		if ok {
			text = fmt.Sprintf("Ticket #%d canceled by %s", closed.ID, manager)
		}
	case actionHandOff:
		var ok bool
		ok, err = k.svc.Reassign(k.target, *k.handTo, true)
		if ok {
			text = fmt.Sprintf("Ticket #%d handed to %s", k.target, k.cookName(*k.handTo))
		}
	}

	k.tickets = k.svc.Tickets()
	k.clampCursor()
	if err != nil {
		return k, func() tea.Msg { return errStatus(err) }
	}
	if text == "" {
		return k, nil
	}
	return k, func() tea.Msg { return statusMsg{text: text} }
}

func (k kitchenModel) view() string {
	if k.width < 20 {
		return "Terminal too small"
	}
	w := k.width - 4

	if k.formActive && k.form != nil {
		title := titleStyle.Render(fmt.Sprintf("Cancel ticket #%d", k.target))
		if k.action == actionHandOff {
			title = titleStyle.Render(fmt.Sprintf("Hand off ticket #%d", k.target))
		}
		return activePanelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", k.form.View()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		k.renderLivePanel(w),
		k.renderBoard(w),
	)
}

func (k kitchenModel) renderLivePanel(w int) string {
	title := titleStyle.Render("Today")
	row := fmt.Sprintf("Fastest %s   Slowest %s   Average %s",
		highlightStyle.Render(k.live.fastest),
		highlightStyle.Render(k.live.slowest),
		highlightStyle.Render(k.live.average),
	)
	count := mutedStyle.Render(fmt.Sprintf("%d tickets counted", k.live.count))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, title, row, count))
}

func (k kitchenModel) renderBoard(w int) string {
	title := titleStyle.Render("Tickets")
	run := k.running()

	var rows []string
	rows = append(rows, title)

	if len(run) == 0 {
		rows = append(rows, mutedStyle.Render("No open tickets. Press t to start one."))
	}
	for i, t := range run {
		cursor := "  "
		style := normalItemStyle
		if i == k.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		elapsed := k.svc.Elapsed(t.ID)
		clock := ticketRunningStyle.Render(stats.FormatSeconds(elapsed))
		if elapsed < k.minTicket {
			clock = ticketShortStyle.Render(stats.FormatSeconds(elapsed))
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s#%-4d %-16s", cursor, t.ID, k.cookName(t.CookPin)))+" "+clock)
	}

	var closed []string
	for _, t := range k.tickets {
		if t.Running {
			continue
		}
		outcome := successStyle.Render(t.Outcome.String())
		if t.Outcome == session.Canceled {
			outcome = errorStyle.Render(t.Outcome.String())
		} else if !t.Persisted {
			outcome = warningStyle.Render(t.Outcome.String() + " (not counted)")
		}
		closed = append(closed, fmt.Sprintf("  #%-4d %-16s %s  %s", t.ID, k.cookName(t.CookPin), stats.FormatSeconds(t.Elapsed), outcome))
	}
	if len(closed) > 0 {
		rows = append(rows, "", mutedStyle.Render("Closed"))
		rows = append(rows, closed...)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  t: new  s: sold  c: cancel  h: hand off  o: clock out"))

	style := panelStyle
	if len(run) > 0 {
		style = activePanelStyle
	}
	return style.Width(w).Render(strings.Join(rows, "\n"))
}
