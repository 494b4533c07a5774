package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/linecook/internal/store"
)

const shiftLimit = 200

type clockLogLister interface {
	ListClockLogs(limit int) ([]store.ClockLog, error)
}

type shiftsModel struct {
	logs   clockLogLister
	loc    *time.Location
	width  int
	height int

	days   []shiftDay
	offset int // first visible line
}

// shiftDay is the clock logs that started on one local day.
type shiftDay struct {
	label string
	logs  []store.ClockLog
}

func newShiftsModel(l clockLogLister, loc *time.Location) shiftsModel {
	return shiftsModel{logs: l, loc: loc}
}

func (s *shiftsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type shiftsDataMsg struct {
	logs []store.ClockLog
}

func (s shiftsModel) refresh() tea.Cmd {
	l := s.logs
	return func() tea.Msg {
		logs, err := l.ListClockLogs(shiftLimit)
		if err != nil {
			return errStatus(err)
		}
		return shiftsDataMsg{logs: logs}
	}
}

func (s shiftsModel) update(msg tea.Msg) (shiftsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case shiftsDataMsg:
		s.days = groupShifts(msg.logs, s.loc)
		s.offset = 0
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if s.offset > 0 {
				s.offset--
			}
		case key.Matches(msg, keys.Down):
			if s.offset < len(s.lines())-1 {
				s.offset++
			}
		}
	}
	return s, nil
}

// groupShifts buckets logs by the local day of their clock-in, keeping the
// newest-first order of the input.
func groupShifts(logs []store.ClockLog, loc *time.Location) []shiftDay {
	var days []shiftDay
	for _, l := range logs {
		label := l.ClockIn.In(loc).Format("Mon Jan 02")
		if n := len(days); n > 0 && days[n-1].label == label {
			days[n-1].logs = append(days[n-1].logs, l)
			continue
		}
		days = append(days, shiftDay{label: label, logs: []store.ClockLog{l}})
	}
	return days
}

func shiftTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "N/A"
	}
	return t.In(loc).Format("03:04PM")
}

func (s shiftsModel) lines() []string {
	var out []string
	for _, d := range s.days {
		out = append(out, highlightStyle.Render(d.label))
		for _, l := range d.logs {
			in := l.ClockIn
			status := mutedStyle.Render(l.Status)
			if l.Open() {
				status = successStyle.Render(l.Status)
			}
			out = append(out, fmt.Sprintf("  %-18s %-8s %-8s %s",
				l.EmployeeName, shiftTime(&in, s.loc), shiftTime(l.ClockOut, s.loc), status))
		}
	}
	return out
}

func (s shiftsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Clock Logs")

	if len(s.days) == 0 {
		return panelStyle.Width(w).Render(title + "\n\n" + mutedStyle.Render("No shifts recorded yet"))
	}

	header := mutedStyle.Render(fmt.Sprintf("  %-18s %-8s %-8s %s", "Name", "In", "Out", "Status"))
	lines := s.lines()
	visible := max(1, s.height-10)
	end := min(len(lines), s.offset+visible)

	rows := []string{title, "", header}
	rows = append(rows, lines[s.offset:end]...)
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
