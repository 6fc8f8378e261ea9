package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alecdray/talkie/internal/api"
	"github.com/alecdray/talkie/internal/config"
	"github.com/alecdray/talkie/internal/msgstore"
	"github.com/alecdray/talkie/internal/securelog"
	"github.com/alecdray/talkie/internal/session"
	"github.com/alecdray/talkie/internal/store"
	"github.com/alecdray/talkie/internal/syncer"
)

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(tea.Model, ...tea.ProgramOption) programRunner

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, newProgram programFactory) error {
	fs := flag.NewFlagSet("talkie", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverAddr := fs.String("server", "", "talkie server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if *serverAddr != "" {
		cfg.ServerURL = *serverAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeLog, err := securelog.Setup(cfg.DataDir)
	if err != nil {
		return err
	}
	defer closeLog()

	app, err := newApp(cfg)
	if err != nil {
		return err
	}

	m := newRootModel(app)

	if newProgram == nil {
		newProgram = func(model tea.Model, options ...tea.ProgramOption) programRunner {
			return tea.NewProgram(model, options...)
		}
	}

	p := newProgram(m, tea.WithAltScreen(), tea.WithInput(stdin), tea.WithOutput(stdout))
	_, err = p.Run()
	return err
}

// app bundles the client's long-lived collaborators; every screen works
// against this one instance instead of ambient globals.
type app struct {
	cfg      config.Config
	api      *api.Client
	sessions *session.Manager
	messages *msgstore.Store
	sync     *syncer.Syncer
}

func newApp(cfg config.Config) (*app, error) {
	kv := store.New(cfg.DataDir)
	client := api.New(cfg.ServerURL, cfg.HTTPTimeout)
	sessions := session.NewManager(kv, client)
	if err := sessions.Load(); err != nil {
		return nil, err
	}

	messages := msgstore.New(kv, cfg.DataDir)
	if err := messages.EnsureDirectory(); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		api:      client,
		sessions: sessions,
		messages: messages,
		sync:     syncer.New(client, sessions, messages),
	}, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
