package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/linecook/internal/stats"
)

type reportsModel struct {
	stats  *stats.Aggregator
	width  int
	height int

	group   stats.Group
	periods []stats.Period
	cursor  int // selected period, newest last

	chart barchart.Model
}

func newReportsModel(agg *stats.Aggregator) reportsModel {
	return reportsModel{
		stats: agg,
		group: stats.Day,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	group   stats.Group
	periods []stats.Period
}

func (r reportsModel) refresh() tea.Cmd {
	agg, g := r.stats, r.group
	return func() tea.Msg {
		periods, err := agg.Grouped(g)
		if err != nil {
			return errStatus(err)
		}
		return reportsDataMsg{group: g, periods: periods}
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		if msg.group != r.group {
			return r, nil
		}
		r.periods = msg.periods
		r.cursor = max(0, len(r.periods)-1)
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.group = shiftGroup(r.group, -1)
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			r.group = shiftGroup(r.group, 1)
			return r, r.refresh()
		case key.Matches(msg, keys.Up):
			if r.cursor > 0 {
				r.cursor--
				r.buildChart()
			}
		case key.Matches(msg, keys.Down):
			if r.cursor < len(r.periods)-1 {
				r.cursor++
				r.buildChart()
			}
		}
	}
	return r, nil
}

func shiftGroup(g stats.Group, step int) stats.Group {
	for i, x := range stats.Groups {
		if x == g {
			n := len(stats.Groups)
			return stats.Groups[(i+step+n)%n]
		}
	}
	return stats.Day
}

func (r reportsModel) period() (stats.Period, bool) {
	if r.cursor < 0 || r.cursor >= len(r.periods) {
		return stats.Period{}, false
	}
	return r.periods[r.cursor], true
}

// buildChart draws the average ticket time per cook, in minutes, for the
// selected period.
func (r *reportsModel) buildChart() {
	chartWidth := max(20, r.width-8)
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}
	r.chart = barchart.New(chartWidth, chartHeight)

	p, ok := r.period()
	if !ok {
		return
	}

	var bars []barchart.BarData
	for i, c := range p.Cooks {
		style := lipgloss.NewStyle().Foreground(barColors[i%len(barColors)])
		bars = append(bars, barchart.BarData{
			Label: c.Name,
			Values: []barchart.BarValue{{
				Name:  c.Name,
				Value: float64(c.Average) / 60,
				Style: style,
			}},
		})
	}
	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	var tabs []string
	for _, g := range stats.Groups {
		if g == r.group {
			tabs = append(tabs, activeTabStyle.Render(g.View()))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(g.View()))
		}
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	label := mutedStyle.Render("No tickets in this range")
	p, ok := r.period()
	if ok {
		label = highlightStyle.Render(p.Label) +
			mutedStyle.Render(fmt.Sprintf("  (%d of %d)", r.cursor+1, len(r.periods)))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Performance"), "  ", modeTabs,
	)

	rows := []string{header, "", label}
	if ok {
		rows = append(rows, "", r.chart.View(), "", r.renderTable(p, w))
	}
	rows = append(rows, "", mutedStyle.Render("  ←/→: grouping  ↑/↓: period  e: export"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (r reportsModel) renderTable(p stats.Period, w int) string {
	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-18s %8s %8s %8s %8s", "Cook", "Shortest", "Longest", "Average", "Tickets")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 56))))

	for i, c := range p.Cooks {
		dot := lipgloss.NewStyle().Foreground(barColors[i%len(barColors)]).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-16s %8s %8s %8s %8d",
			dot, c.Name,
			stats.FormatSeconds(c.Fastest),
			stats.FormatSeconds(c.Slowest),
			stats.FormatSeconds(c.Average),
			c.Count,
		))
	}
	return strings.Join(rows, "\n")
}
