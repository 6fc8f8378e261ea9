package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/msgstore"
	"github.com/alecdray/talkie/internal/notefile"
	"github.com/alecdray/talkie/internal/syncer"
)

type inboxLoadedMsg struct {
	messages []msgstore.Message
}

type prefetchDoneMsg struct {
	outcomes []syncer.Outcome
	err      error
}

type usersLoadedMsg struct {
	names map[string]string
}

type playFinishedMsg struct {
	id  string
	err error
}

type deleteDoneMsg struct {
	err error
}

type inboxModel struct {
	app       *app
	spinner   spinner.Model
	msgs      []msgstore.Message
	userNames map[string]string
	cursor    int
	syncing   bool
	playingID string
	status    string
	errMsg    string
	width     int
	height    int
}

func newInboxModel(a *app, width, height int) inboxModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyle

	return inboxModel{
		app:       a,
		spinner:   sp,
		userNames: map[string]string{},
		syncing:   true,
		width:     width,
		height:    height,
	}
}

func (m inboxModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadInboxCmd(m.app), prefetchCmd(m.app), loadUsersCmd(m.app))
}

func (m inboxModel) Update(msg tea.Msg) (inboxModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case inboxLoadedMsg:
		m.msgs = msg.messages
		if m.cursor >= len(m.msgs) {
			m.cursor = clampMin(len(m.msgs)-1, 0)
		}
		return m, nil

	case prefetchDoneMsg:
		m.syncing = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			if syncer.IsAuthError(msg.err) {
				m.errMsg = "session rejected by server; try ctrl+l to log out"
			}
			return m, nil
		}
		// An ack-only failure still leaves the memo cached and
		// playable; only undownloaded memos are reported as missing.
		failed := syncer.Failed(msg.outcomes)
		missing := 0
		for _, o := range failed {
			if !o.Downloaded {
				missing++
			}
		}
		switch {
		case missing > 0:
			m.errMsg = fmt.Sprintf("%d message(s) could not be fetched", missing)
		case len(failed) > 0:
			m.errMsg = fmt.Sprintf("%d memo(s) fetched but not acknowledged", len(failed))
		default:
			m.errMsg = ""
		}
		// The store, not the outcome list, is what the user sees.
		return m, loadInboxCmd(m.app)

	case usersLoadedMsg:
		m.userNames = msg.names
		return m, nil

	case playFinishedMsg:
		m.playingID = ""
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, loadInboxCmd(m.app)
		}
		m.status = ""
		return m, loadInboxCmd(m.app)

	case deleteDoneMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, loadInboxCmd(m.app)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		m.status = ""
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.msgs)-1 {
				m.cursor++
			}
		case "enter":
			if m.playingID != "" || len(m.msgs) == 0 {
				return m, nil
			}
			id := m.msgs[m.cursor].ID
			m.playingID = id
			m.errMsg = ""
			return m, playCmd(m.app, id)
		case "d":
			if len(m.msgs) == 0 {
				return m, nil
			}
			return m, deleteCmd(m.app, m.msgs[m.cursor].ID)
		case "r":
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			m.errMsg = ""
			return m, tea.Batch(m.spinner.Tick, prefetchCmd(m.app), loadUsersCmd(m.app))
		case "n":
			return m, func() tea.Msg { return showRecordMsg{} }
		case "s":
			return m, func() tea.Msg { return showSettingsMsg{} }
		case "ctrl+l":
			return m, logoutCmd(m.app)
		}
	}

	return m, nil
}

func (m inboxModel) View() string {
	var b strings.Builder

	name := ""
	if s := m.app.sessions.Current(); s != nil {
		name = s.Name
	}
	b.WriteString("\n")
	b.WriteString("  " + appNameStyle.Render("))) talkie") + subtitleStyle.Render("  inbox — "+name))
	b.WriteString("\n")
	b.WriteString(separator(m.width))
	b.WriteString("\n\n")

	if len(m.msgs) == 0 {
		if m.syncing {
			b.WriteString("  " + m.spinner.View() + labelStyle.Render(" checking for new memos..."))
		} else {
			b.WriteString(labelStyle.Render("  no memos yet — press n to send one"))
		}
		b.WriteString("\n")
	}

	for i, msg := range m.msgs {
		marker := unplayedStyle.Render("●")
		rowStyle := labelStyle
		switch {
		case msg.ID == m.playingID:
			marker = statusStyle.Render("▶")
			rowStyle = selectedStyle
		case msg.Played == msgstore.Finished:
			marker = playedStyle.Render("·")
			rowStyle = playedStyle
		case msg.Played == msgstore.Started:
			marker = unplayedStyle.Render("◐")
		}

		sender := m.userNames[msg.SenderUserID]
		if sender == "" {
			sender = trimLine(msg.SenderUserID, 8)
		}
		row := fmt.Sprintf("%s  %-20s %6s  %s",
			marker,
			trimLine(sender, 20),
			formatSeconds(msg.Duration),
			msg.CreatedAt.Local().Format("Jan 02 15:04"),
		)
		prefix := "   "
		if i == m.cursor {
			prefix = " > "
			row = rowStyle.Render(row)
		} else if msg.ID != m.playingID && msg.Played == msgstore.Finished {
			row = rowStyle.Render(row)
		}
		b.WriteString(prefix + row + "\n")
	}

	b.WriteString("\n")
	if m.syncing && len(m.msgs) > 0 {
		b.WriteString("  " + m.spinner.View() + labelStyle.Render(" syncing...") + "\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render("  "+m.status) + "\n")
	}
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("  x "+m.errMsg) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  enter: play - n: new memo - r: refresh - d: delete - s: settings - ctrl+l: logout - ctrl+q: quit"))
	return b.String()
}

// loadInboxCmd re-reads the local store. Entries whose audio file has
// vanished are treated as not present; the next refresh re-downloads
// them.
func loadInboxCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		all, err := a.messages.GetAll()
		if err != nil {
			return prefetchDoneMsg{err: err}
		}
		msgs := make([]msgstore.Message, 0, len(all))
		for _, msg := range all {
			if a.messages.Stale(&msg) {
				continue
			}
			msgs = append(msgs, msg)
		}
		return inboxLoadedMsg{messages: msgs}
	}
}

func prefetchCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		outcomes, err := a.sync.Prefetch(context.Background())
		return prefetchDoneMsg{outcomes: outcomes, err: err}
	}
}

func loadUsersCmd(a *app) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		token, err := a.sessions.Token(ctx)
		if err != nil {
			return usersLoadedMsg{names: map[string]string{}}
		}
		users, err := a.api.ListUsers(ctx, token)
		if err != nil {
			return usersLoadedMsg{names: map[string]string{}}
		}
		names := make(map[string]string, len(users))
		for _, u := range users {
			names[u.ID] = u.Name
		}
		return usersLoadedMsg{names: names}
	}
}

// markStarted advances a memo to STARTED on its first play. Replays of
// a STARTED or FINISHED memo leave the status alone; the store rejects
// backward transitions, and a replay is not a regression.
func markStarted(a *app, m *msgstore.Message) error {
	if m.Played != msgstore.Unplayed {
		return nil
	}
	return a.messages.UpdatePlayedStatus(m.ID, msgstore.Started)
}

// playCmd plays one cached memo end to end, advancing its played
// status to STARTED up front and FINISHED once playback drains.
func playCmd(a *app, id string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		msg, ok, err := a.messages.Get(id)
		if err != nil {
			return playFinishedMsg{id: id, err: err}
		}
		if !ok || a.messages.Stale(msg) {
			return playFinishedMsg{id: id, err: fmt.Errorf("memo %s is not cached", id)}
		}

		if err := markStarted(a, msg); err != nil {
			return playFinishedMsg{id: id, err: err}
		}

		frames, _, err := notefile.Read(msg.FilePath)
		if err != nil {
			return playFinishedMsg{id: id, err: err}
		}

		player, err := audioPlayer(ctx)
		if err != nil {
			return playFinishedMsg{id: id, err: err}
		}
		defer player.Close()

		for _, frame := range frames {
			player.Write(frame)
		}
		if err := player.Drain(ctx); err != nil {
			return playFinishedMsg{id: id, err: err}
		}

		if err := a.messages.UpdatePlayedStatus(id, msgstore.Finished); err != nil {
			return playFinishedMsg{id: id, err: err}
		}
		return playFinishedMsg{id: id}
	}
}

func deleteCmd(a *app, id string) tea.Cmd {
	return func() tea.Msg {
		return deleteDoneMsg{err: a.messages.Delete(id)}
	}
}
