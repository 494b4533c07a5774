package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/linecook/internal/session"
)

const pinLength = 5

type loginModel struct {
	svc    *session.Service
	input  textinput.Model
	width  int
	height int
}

func newLoginModel(svc *session.Service) loginModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "PIN"
	ti.CharLimit = pinLength
	ti.Width = pinLength + 1
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Focus()
	return loginModel{svc: svc, input: ti}
}

func (l *loginModel) setSize(w, h int) {
	l.width = w
	l.height = h
}

func (l loginModel) update(msg tea.Msg) (loginModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Enter):
			pin := l.input.Value()
			l.input.Reset()
			if pin == "" {
				return l, nil
			}
			return l, l.clockIn(pin)
		case key.Matches(msg, keys.Back):
			l.input.Reset()
			return l, nil
		case msg.Type == tea.KeyRunes && !digits(msg.Runes):
			return l, nil
		}
	}

	var cmd tea.Cmd
	l.input, cmd = l.input.Update(msg)
	return l, cmd
}

func (l loginModel) clockIn(pin string) tea.Cmd {
	svc := l.svc
	return func() tea.Msg {
		sess, err := svc.ClockIn(pin)
		if err != nil {
			return errStatus(err)
		}
		return signedInMsg{session: sess}
	}
}

func (l loginModel) view() string {
	w := l.width - 4

	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Clock In"),
		"",
		mutedStyle.Render("Enter your PIN"),
		"",
		pinStyle.Width(w-6).Render(l.input.View()),
		"",
		mutedStyle.Render("enter: clock in  esc: clear"),
	)
	return activePanelStyle.Width(w).Align(lipgloss.Center).Render(content)
}

func digits(rs []rune) bool {
	for _, r := range rs {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(rs) > 0
}
