package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/audio"
	"github.com/alecdray/talkie/internal/notefile"
)

type recordPhase int

const (
	recIdle recordPhase = iota
	recRecording
	recReady
	recUploading
)

type writeResult struct {
	dur time.Duration
	err error
}

type recorderReadyMsg struct {
	rec  *audio.Recorder
	done chan writeResult
}

type recordDoneMsg struct {
	dur time.Duration
	err error
}

type recordTickMsg struct{}

type uploadDoneMsg struct {
	err error
}

type recordModel struct {
	app     *app
	phase   recordPhase
	rec     *audio.Recorder
	done    chan writeResult
	path    string
	dur     time.Duration
	started time.Time
	elapsed time.Duration
	errMsg  string
	width   int
	height  int
}

func newRecordModel(a *app, width, height int) recordModel {
	return recordModel{
		app:    a,
		path:   filepath.Join(os.TempDir(), fmt.Sprintf("talkie-memo-%d.ogg", time.Now().UnixNano())),
		width:  width,
		height: height,
	}
}

func (m recordModel) Init() tea.Cmd {
	return nil
}

func (m recordModel) Update(msg tea.Msg) (recordModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case recorderReadyMsg:
		m.rec = msg.rec
		m.done = msg.done
		m.phase = recRecording
		m.started = time.Now()
		m.elapsed = 0
		return m, recordTick()

	case recordTickMsg:
		if m.phase != recRecording {
			return m, nil
		}
		m.elapsed = time.Since(m.started)
		return m, recordTick()

	case recordDoneMsg:
		if msg.err != nil {
			m.phase = recIdle
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.phase = recReady
		m.dur = msg.dur
		return m, nil

	case authErrorMsg:
		m.phase = recReady
		m.errMsg = msg.err.Error()
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			m.phase = recReady
			m.errMsg = msg.err.Error()
			return m, nil
		}
		return m, func() tea.Msg { return showInboxMsg{note: "memo sent"} }

	case tea.KeyMsg:
		m.errMsg = ""
		switch msg.String() {
		case " ", "space":
			switch m.phase {
			case recIdle:
				return m, startRecordingCmd(m.path)
			case recRecording:
				// Closing the recorder ends the frame stream; the
				// writer goroutine finishes the file and reports back.
				_ = m.rec.Close()
				return m, awaitRecordingCmd(m.done)
			}
		case "enter":
			if m.phase != recReady {
				return m, nil
			}
			m.phase = recUploading
			return m, uploadCmd(m.app, m.path, m.dur)
		case "esc":
			if m.phase == recUploading {
				return m, nil
			}
			if m.rec != nil {
				_ = m.rec.Close()
			}
			_ = os.Remove(m.path)
			return m, func() tea.Msg { return showInboxMsg{} }
		}
	}

	return m, nil
}

func (m recordModel) View() string {
	var b strings.Builder

	topPad := 0
	if m.height > 12 {
		topPad = (m.height - 12) / 3
	}
	b.WriteString(strings.Repeat("\n", topPad))

	b.WriteString(centerText(appNameStyle.Render("))) talkie"), m.width))
	b.WriteString("\n")
	b.WriteString(centerText(subtitleStyle.Render("new memo"), m.width))
	b.WriteString("\n\n")

	switch m.phase {
	case recIdle:
		b.WriteString(centerText(labelStyle.Render("press space to start recording"), m.width))
	case recRecording:
		line := recordingStyle.Render("● recording ") + headerStyle.Render(m.elapsed.Round(time.Second).String())
		b.WriteString(centerText(line, m.width))
	case recReady:
		line := statusStyle.Render("✔ recorded ") + headerStyle.Render(m.dur.Round(time.Second).String())
		b.WriteString(centerText(line, m.width))
	case recUploading:
		b.WriteString(centerText(labelStyle.Render("sending..."), m.width))
	}
	b.WriteString("\n\n")

	if m.errMsg != "" {
		b.WriteString(centerText(errorStyle.Render("x "+m.errMsg), m.width))
		b.WriteString("\n\n")
	}

	help := "space: start/stop - enter: send - esc: discard"
	b.WriteString(centerText(helpStyle.Render(help), m.width))
	return b.String()
}

func recordTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return recordTickMsg{}
	})
}

// startRecordingCmd opens the microphone and hands the encoder its
// frame stream. The file keeps being written until the recorder is
// closed.
func startRecordingCmd(path string) tea.Cmd {
	return func() tea.Msg {
		rec, frames, err := audioRecorder(context.Background())
		if err != nil {
			return recordDoneMsg{err: err}
		}

		done := make(chan writeResult, 1)
		go func() {
			dur, err := notefile.Write(path, frames)
			done <- writeResult{dur: dur, err: err}
		}()

		return recorderReadyMsg{rec: rec, done: done}
	}
}

func awaitRecordingCmd(done chan writeResult) tea.Cmd {
	return func() tea.Msg {
		res := <-done
		return recordDoneMsg{dur: res.dur, err: res.err}
	}
}

func uploadCmd(a *app, path string, dur time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		token, err := a.sessions.Token(ctx)
		if err != nil {
			return authErrorMsg{err: err}
		}

		f, err := os.Open(path)
		if err != nil {
			return uploadDoneMsg{err: fmt.Errorf("open recording: %w", err)}
		}
		defer f.Close()

		if _, err := a.api.Upload(ctx, token, f, "audio"+filepath.Ext(path), dur.Seconds()); err != nil {
			return uploadDoneMsg{err: err}
		}
		_ = os.Remove(path)
		return uploadDoneMsg{}
	}
}
