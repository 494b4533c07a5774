package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/linecook/internal/session"
	"github.com/sadopc/linecook/internal/store"
)

type cooksModel struct {
	svc      *session.Service
	cookList cookLister
	width    int
	height   int

	cooks  []store.Cook
	cursor int

	formActive bool
	form       *huh.Form

	// Form field pointers (survive value copies)
	formPin  *string
	formName *string
}

func newCooksModel(svc *session.Service, cl cookLister) cooksModel {
	pin, name := "", ""
	return cooksModel{
		svc:      svc,
		cookList: cl,
		formPin:  &pin,
		formName: &name,
	}
}

func (c *cooksModel) setSize(w, h int) {
	c.width = w
	c.height = h
}

func (c cooksModel) refresh() tea.Cmd {
	cl := c.cookList
	return func() tea.Msg {
		cooks, err := cl.ListCooks()
		if err != nil {
			return errStatus(err)
		}
		return cooksDataMsg{cooks: cooks}
	}
}

func (c cooksModel) update(msg tea.Msg) (cooksModel, tea.Cmd) {
	if c.formActive && c.form != nil {
		return c.updateForm(msg)
	}

	switch msg := msg.(type) {
	case cooksDataMsg:
		c.cooks = msg.cooks
		if c.cursor >= len(c.cooks) {
			c.cursor = max(0, len(c.cooks)-1)
		}
		return c, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if c.cursor > 0 {
				c.cursor--
			}
		case key.Matches(msg, keys.Down):
			if c.cursor < len(c.cooks)-1 {
				c.cursor++
			}
		case key.Matches(msg, keys.New):
			return c.showNewCookForm()
		}
	}
	return c, nil
}

func validatePin(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || !digits([]rune(s)) {
		return errors.New("PIN must be digits")
	}
	if n, _ := strconv.ParseInt(s, 10, 64); n <= 0 {
		return errors.New("PIN must be greater than zero")
	}
	return nil
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("name is required")
	}
	return nil
}

func (c cooksModel) showNewCookForm() (cooksModel, tea.Cmd) {
	*c.formPin = ""
	*c.formName = ""

	c.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Validate(validateName).Value(c.formName),
			huh.NewInput().Title("PIN").CharLimit(pinLength).Validate(validatePin).Value(c.formPin),
		),
	).WithShowHelp(true).WithShowErrors(true)

	c.formActive = true
	return c, c.form.Init()
}

func (c cooksModel) updateForm(msg tea.Msg) (cooksModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			c.formActive = false
			c.form = nil
			return c, nil
		}
	}

	form, cmd := c.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		c.form = f
	}

	if c.form.State == huh.StateCompleted {
		c.formActive = false
		c.form = nil
		cook, err := c.svc.AddCook(*c.formPin, *c.formName)
		if err != nil {
			return c, func() tea.Msg { return errStatus(err) }
		}
		return c, tea.Batch(
			c.refresh(),
			func() tea.Msg { return statusMsg{text: fmt.Sprintf("Added %s", cook.Name)} },
		)
	}

	return c, cmd
}

func (c cooksModel) view() string {
	w := c.width - 4

	if c.formActive && c.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("New Cook"), "", c.form.View())
		return panelStyle.Width(w).Render(content)
	}

	title := titleStyle.Render("Cooks")
	if len(c.cooks) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No cooks yet. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-24s %s", "Name", "PIN")))

	for i, cook := range c.cooks {
		cursor := "  "
		style := normalItemStyle
		if i == c.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-24s %d", cursor, cook.Name, cook.Pin)))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new cook"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
