package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/session"
)

type appState int

const (
	stateRegister appState = iota
	stateWaiting
	stateInbox
	stateRecord
	stateSettings
)

// Screen transition messages. Screens emit these instead of reaching
// into each other.
type registeredMsg struct{}

type loginOKMsg struct {
	session *session.Session
}

type stillPendingMsg struct{}

type loggedOutMsg struct{}

type showInboxMsg struct {
	// note set when returning from a send so the inbox can confirm it.
	note string
}

type showRecordMsg struct{}

type showSettingsMsg struct{}

type authErrorMsg struct {
	err error
}

type rootModel struct {
	app      *app
	state    appState
	register registerModel
	waiting  waitingModel
	inbox    inboxModel
	record   recordModel
	settings settingsModel
	width    int
	height   int
}

func newRootModel(a *app) rootModel {
	m := rootModel{app: a}
	switch a.sessions.State() {
	case session.StateApproved:
		m.state = stateInbox
		m.inbox = newInboxModel(a, 0, 0)
	case session.StatePendingApproval:
		m.state = stateWaiting
		m.waiting = newWaitingModel(a, 0, 0)
	default:
		m.state = stateRegister
		m.register = newRegisterModel(a, 0, 0)
	}
	return m
}

func (m rootModel) Init() tea.Cmd {
	switch m.state {
	case stateInbox:
		return m.inbox.Init()
	case stateWaiting:
		return m.waiting.Init()
	default:
		return m.register.Init()
	}
}

func (m rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wsm.Width
		m.height = wsm.Height
	}

	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "ctrl+q" {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case registeredMsg:
		m.state = stateWaiting
		m.waiting = newWaitingModel(m.app, m.width, m.height)
		return m, m.waiting.Init()

	case loginOKMsg:
		m.state = stateInbox
		m.inbox = newInboxModel(m.app, m.width, m.height)
		return m, m.inbox.Init()

	case loggedOutMsg:
		m.state = stateRegister
		m.register = newRegisterModel(m.app, m.width, m.height)
		return m, m.register.Init()

	case showInboxMsg:
		m.state = stateInbox
		m.inbox = newInboxModel(m.app, m.width, m.height)
		m.inbox.status = msg.note
		return m, m.inbox.Init()

	case showRecordMsg:
		m.state = stateRecord
		m.record = newRecordModel(m.app, m.width, m.height)
		return m, m.record.Init()

	case showSettingsMsg:
		m.state = stateSettings
		m.settings = newSettingsModel(m.app, m.width, m.height)
		return m, m.settings.Init()
	}

	var cmd tea.Cmd
	switch m.state {
	case stateRegister:
		m.register, cmd = m.register.Update(msg)
	case stateWaiting:
		m.waiting, cmd = m.waiting.Update(msg)
	case stateInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case stateRecord:
		m.record, cmd = m.record.Update(msg)
	case stateSettings:
		m.settings, cmd = m.settings.Update(msg)
	}
	return m, cmd
}

func (m rootModel) View() string {
	switch m.state {
	case stateRegister:
		return m.register.View()
	case stateWaiting:
		return m.waiting.View()
	case stateInbox:
		return m.inbox.View()
	case stateRecord:
		return m.record.View()
	case stateSettings:
		return m.settings.View()
	}
	return ""
}
