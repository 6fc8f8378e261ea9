package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/api"
	"github.com/alecdray/talkie/internal/config"
)

var errTest = errors.New("test error")

type fakeProgram struct {
	ran bool
}

func (f *fakeProgram) Run() (tea.Model, error) {
	f.ran = true
	return nil, nil
}

func newCapturingFactory(capture func(rootModel)) programFactory {
	return func(m tea.Model, _ ...tea.ProgramOption) programRunner {
		capture(m.(rootModel))
		return &fakeProgram{}
	}
}

// fakeTalkieServer is a minimal in-memory stand-in for the real backend,
// enough for every screen's commands to run against.
type fakeTalkieServer struct {
	*httptest.Server

	mu       sync.Mutex
	approved bool
	messages []api.RemoteMessage
	audio    map[string][]byte
	uploads  int
	acks     []string
}

func newFakeTalkieServer(t *testing.T) *fakeTalkieServer {
	t.Helper()
	fs := &fakeTalkieServer{audio: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.RegisterResponse{Message: "pending", UserID: "user-1"})
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		approved := fs.approved
		fs.mu.Unlock()
		if !approved {
			http.Error(w, "User not approved yet", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LoginResponse{
			Token:          "tok",
			UserID:         "user-1",
			Name:           "ada",
			TokenExpiresAt: time.Now().Add(time.Hour),
		})
	})
	mux.HandleFunc("/api/audio-messages", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		msgs := fs.messages
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]api.RemoteMessage{"messages": msgs})
	})
	mux.HandleFunc("/api/audio-messages/download", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		data := fs.audio[r.URL.Query().Get("id")]
		fs.mu.Unlock()
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/api/audio-messages/received", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fs.mu.Lock()
		fs.acks = append(fs.acks, payload["message_id"])
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/api/audio-messages/upload", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.uploads++
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.UploadResponse{MessageID: "m-up", Message: "ok"})
	})
	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]api.User{"users": {{ID: "u2", Name: "bob"}}})
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func newTestApp(t *testing.T, serverURL string) *app {
	t.Helper()
	cfg := config.Config{
		ServerURL:   serverURL,
		DataDir:     t.TempDir(),
		HTTPTimeout: 5 * time.Second,
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

// approvedTestApp returns an app already registered and logged in
// against the fake server.
func approvedTestApp(t *testing.T, fs *fakeTalkieServer) *app {
	t.Helper()
	fs.mu.Lock()
	fs.approved = true
	fs.mu.Unlock()

	a := newTestApp(t, fs.URL)
	if err := a.sessions.Register(context.Background(), "ada"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := a.sessions.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	return a
}
