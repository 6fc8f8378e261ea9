package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type clearDoneMsg struct {
	err error
}

type cacheCountMsg struct {
	count int
}

var settingsEntries = []string{
	"clear downloaded memos",
	"log out",
	"back to inbox",
}

type settingsModel struct {
	app    *app
	cursor int
	count  int
	status string
	errMsg string
	width  int
	height int
}

func newSettingsModel(a *app, width, height int) settingsModel {
	return settingsModel{app: a, width: width, height: height}
}

func (m settingsModel) Init() tea.Cmd {
	return cacheCountCmd(m.app)
}

func (m settingsModel) Update(msg tea.Msg) (settingsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case cacheCountMsg:
		m.count = msg.count
		return m, nil

	case clearDoneMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.status = "downloads cleared"
		return m, cacheCountCmd(m.app)

	case authErrorMsg:
		m.errMsg = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		m.status = ""
		m.errMsg = ""
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(settingsEntries)-1 {
				m.cursor++
			}
		case "esc":
			return m, func() tea.Msg { return showInboxMsg{} }
		case "enter":
			switch m.cursor {
			case 0:
				return m, clearCacheCmd(m.app)
			case 1:
				return m, logoutCmd(m.app)
			case 2:
				return m, func() tea.Msg { return showInboxMsg{} }
			}
		}
	}

	return m, nil
}

func (m settingsModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  " + appNameStyle.Render("))) talkie") + subtitleStyle.Render("  settings"))
	b.WriteString("\n")
	b.WriteString(separator(m.width))
	b.WriteString("\n\n")

	if s := m.app.sessions.Current(); s != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  signed in as %s (%s)", s.Name, s.State())) + "\n")
	}
	b.WriteString(labelStyle.Render("  server: "+m.app.cfg.ServerURL) + "\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("  cached memos: %d", m.count)) + "\n\n")

	for i, entry := range settingsEntries {
		prefix := "   "
		line := labelStyle.Render(entry)
		if i == m.cursor {
			prefix = " > "
			line = selectedStyle.Render(entry)
		}
		b.WriteString(prefix + line + "\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render("  "+m.status) + "\n")
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("  x "+m.errMsg) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  up/down: move - enter: select - esc: back - ctrl+q: quit"))
	return b.String()
}

func cacheCountCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		msgs, err := a.messages.GetAll()
		if err != nil {
			return cacheCountMsg{}
		}
		return cacheCountMsg{count: len(msgs)}
	}
}

func clearCacheCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		return clearDoneMsg{err: a.messages.DeleteAll()}
	}
}
