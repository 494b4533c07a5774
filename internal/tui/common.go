package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/linecook/internal/session"
	"github.com/sadopc/linecook/internal/store"
)

// viewState represents the currently active manager view.
type viewState int

const (
	viewShifts viewState = iota
	viewReports
	viewCooks
)

var viewNames = []string{"Shifts", "Performance", "Cooks"}

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

// ticketTickMsg redraws one running ticket.
type ticketTickMsg struct {
	id  int64
	gen uint64
}

type signedInMsg struct {
	session session.Session
}

type signedOutMsg struct{}

type liveStatsMsg struct {
	fastest, slowest, average string
	count                     int
}

type cooksDataMsg struct {
	cooks []store.Cook
}

type exportDoneMsg struct {
	path string
}

// AutoLogoutMsg tells the UI the nightly auto-logout ran. Send it with
// tea.Program.Send from outside the update loop.
type AutoLogoutMsg struct {
	Cutoff    time.Time
	SignedOut bool
}

// errStatus turns an error into a status-bar message.
func errStatus(err error) tea.Msg {
	return statusMsg{text: session.Message(err), isError: true}
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// clockOut signs out. A failure after the session already ended still
// returns to the login screen.
func clockOut(svc *session.Service) tea.Cmd {
	return func() tea.Msg {
		if err := svc.ClockOut(); err != nil && svc.Current() != nil {
			return errStatus(err)
		}
		return signedOutMsg{}
	}
}
