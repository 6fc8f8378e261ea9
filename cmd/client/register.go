package main

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	minNameLen = 2
	maxNameLen = 30
)

type registerModel struct {
	app       *app
	nameInput textinput.Model
	loading   bool
	errMsg    string
	width     int
	height    int
}

func newRegisterModel(a *app, width, height int) registerModel {
	name := textinput.New()
	name.Placeholder = "your name (2-30 chars)"
	name.CharLimit = maxNameLen
	name.Width = 40
	name.Focus()

	return registerModel{
		app:       a,
		nameInput: name,
		width:     width,
		height:    height,
	}
}

func (m registerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m registerModel) Update(msg tea.Msg) (registerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case authErrorMsg:
		m.loading = false
		m.errMsg = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		m.errMsg = ""
		if msg.String() == "enter" {
			if m.loading {
				return m, nil
			}
			name := strings.TrimSpace(m.nameInput.Value())
			// CharLimit counts runes, so the check must too.
			if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
				m.errMsg = "name must be 2-30 characters"
				return m, nil
			}
			m.loading = true
			return m, registerCmd(m.app, name)
		}
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m registerModel) View() string {
	var b strings.Builder

	topPad := 0
	if m.height > 12 {
		topPad = (m.height - 12) / 3
	}
	b.WriteString(strings.Repeat("\n", topPad))

	b.WriteString(centerText(appNameStyle.Render("))) talkie"), m.width))
	b.WriteString("\n")
	b.WriteString(centerText(subtitleStyle.Render("voice memos for approved folks"), m.width))
	b.WriteString("\n\n")
	b.WriteString(centerText(headerStyle.Render("[ Register this device ]"), m.width))
	b.WriteString("\n\n")

	line := labelStyle.Render("  Name: ") + m.nameInput.View()
	b.WriteString(centerText(line, m.width))
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(centerText(errorStyle.Render("  x "+m.errMsg), m.width))
		b.WriteString("\n\n")
	}
	if m.loading {
		b.WriteString(centerText(labelStyle.Render("  registering..."), m.width))
		b.WriteString("\n\n")
	}

	b.WriteString(centerText(helpStyle.Render("enter: register - ctrl+q: quit"), m.width))
	return b.String()
}

func registerCmd(a *app, name string) tea.Cmd {
	return func() tea.Msg {
		if err := a.sessions.Register(context.Background(), name); err != nil {
			return authErrorMsg{err: err}
		}
		return registeredMsg{}
	}
}
