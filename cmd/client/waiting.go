package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/session"
)

// approvalPollInterval is how often the waiting screen retries login
// while the account is still pending.
const approvalPollInterval = 5 * time.Second

type approvalTickMsg struct{}

type waitingModel struct {
	app     *app
	spinner spinner.Model
	name    string
	errMsg  string
	width   int
	height  int
}

func newWaitingModel(a *app, width, height int) waitingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyle

	name := ""
	if s := a.sessions.Current(); s != nil {
		name = s.Name
	}

	return waitingModel{
		app:     a,
		spinner: sp,
		name:    name,
		width:   width,
		height:  height,
	}
}

func (m waitingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, attemptLoginCmd(m.app))
}

func (m waitingModel) Update(msg tea.Msg) (waitingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stillPendingMsg:
		m.errMsg = ""
		return m, tea.Tick(approvalPollInterval, func(time.Time) tea.Msg {
			return approvalTickMsg{}
		})

	case approvalTickMsg:
		return m, attemptLoginCmd(m.app)

	case authErrorMsg:
		m.errMsg = msg.err.Error()
		return m, tea.Tick(approvalPollInterval, func(time.Time) tea.Msg {
			return approvalTickMsg{}
		})

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			m.errMsg = ""
			return m, attemptLoginCmd(m.app)
		case "ctrl+l":
			return m, logoutCmd(m.app)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m waitingModel) View() string {
	var b strings.Builder

	topPad := 0
	if m.height > 12 {
		topPad = (m.height - 12) / 3
	}
	b.WriteString(strings.Repeat("\n", topPad))

	b.WriteString(centerText(appNameStyle.Render("))) talkie"), m.width))
	b.WriteString("\n\n")

	hello := "Almost there"
	if m.name != "" {
		hello = "Almost there, " + m.name
	}
	b.WriteString(centerText(headerStyle.Render(hello), m.width))
	b.WriteString("\n\n")

	b.WriteString(centerText(m.spinner.View()+labelStyle.Render(" waiting for an admin to approve this device"), m.width))
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(centerText(errorStyle.Render("  x "+m.errMsg), m.width))
		b.WriteString("\n\n")
	}

	b.WriteString(centerText(helpStyle.Render("r: check now - ctrl+l: start over - ctrl+q: quit"), m.width))
	return b.String()
}

// attemptLoginCmd tries to log in; a still-pending device keeps the
// waiting screen alive rather than erroring.
func attemptLoginCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		s, err := a.sessions.Login(context.Background())
		if err != nil {
			if errors.Is(err, session.ErrNotApproved) {
				return stillPendingMsg{}
			}
			return authErrorMsg{err: err}
		}
		return loginOKMsg{session: s}
	}
}

func logoutCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		if err := a.sessions.Logout(); err != nil {
			return authErrorMsg{err: err}
		}
		return loggedOutMsg{}
	}
}
