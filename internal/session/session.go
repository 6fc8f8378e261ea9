// Package session owns the locally persisted auth session: who this
// device is, whether it has been approved, and the bearer token used for
// authenticated API calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alecdray/talkie/internal/api"
	"github.com/alecdray/talkie/internal/store"
)

const (
	sessionKey = "session"
	deviceKey  = "device-id"

	// refreshLead is how close to token expiry a re-login is forced
	// before issuing an authenticated call.
	refreshLead = 15 * time.Minute
)

var (
	ErrNotRegistered = errors.New("device is not registered")
	ErrNotApproved   = errors.New("device is not approved yet")
)

type State int

const (
	StateUnregistered State = iota
	StatePendingApproval
	StateApproved
)

func (s State) String() string {
	switch s {
	case StatePendingApproval:
		return "pending approval"
	case StateApproved:
		return "approved"
	default:
		return "unregistered"
	}
}

type Session struct {
	Name           string    `json:"name"`
	UserID         string    `json:"user_id"`
	DeviceID       string    `json:"device_id"`
	Approved       bool      `json:"approved"`
	Token          string    `json:"token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitzero"`
}

func (s *Session) State() State {
	switch {
	case s == nil:
		return StateUnregistered
	case s.Approved && s.Token != "":
		return StateApproved
	default:
		return StatePendingApproval
	}
}

type Manager struct {
	store *store.Store
	api   *api.Client

	mu      sync.Mutex
	current *Session

	now func() time.Time
}

func NewManager(st *store.Store, client *api.Client) *Manager {
	return &Manager{store: st, api: client, now: time.Now}
}

// Load reads the persisted session at startup. A missing record means
// the device has never registered.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Session
	ok, err := m.store.Get(sessionKey, &s)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if ok {
		m.current = &s
	}
	return nil
}

// Current returns a copy of the session, or nil when unregistered.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

func (m *Manager) State() State {
	return m.Current().State()
}

// Register creates a pending account for this device. Registering a
// device the server already knows is treated as success; the account
// stays pending either way.
func (m *Manager) Register(ctx context.Context, name string) error {
	deviceID, err := m.deviceID()
	if err != nil {
		return err
	}

	resp, err := m.api.Register(ctx, name, deviceID)
	if err != nil {
		return err
	}

	s := &Session{
		Name:     name,
		UserID:   resp.UserID,
		DeviceID: deviceID,
		Approved: false,
	}
	return m.setSession(s)
}

// Login exchanges the device id for a bearer token. A pending device
// gets ErrNotApproved and the stored session is left untouched.
func (m *Manager) Login(ctx context.Context) (*Session, error) {
	cur := m.Current()
	if cur == nil {
		return nil, ErrNotRegistered
	}

	resp, err := m.api.Login(ctx, cur.DeviceID)
	if err != nil {
		if apiErr, ok := api.AsError(err); ok && apiErr.NotApproved() {
			return nil, fmt.Errorf("%w: %v", ErrNotApproved, err)
		}
		return nil, err
	}

	s := &Session{
		Name:           resp.Name,
		UserID:         resp.UserID,
		DeviceID:       cur.DeviceID,
		Approved:       true,
		Token:          resp.Token,
		TokenExpiresAt: resp.TokenExpiresAt,
	}
	if err := m.setSession(s); err != nil {
		return nil, err
	}
	return m.Current(), nil
}

// Logout clears the persisted session. The device id is kept so a later
// registration reuses the same identity.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(sessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.current = nil
	return nil
}

// Token returns a bearer token good for at least refreshLead, logging in
// again first when the stored one is missing or about to expire. It
// fails with ErrNotRegistered before any network call when the device
// has no session at all.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cur := m.Current()
	if cur == nil {
		return "", ErrNotRegistered
	}

	if cur.Token != "" && m.now().Add(refreshLead).Before(cur.TokenExpiresAt) {
		return cur.Token, nil
	}

	s, err := m.Login(ctx)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (m *Manager) setSession(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(sessionKey, s); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.current = s
	return nil
}

// deviceID loads the stable device identity, minting one on first use.
func (m *Manager) deviceID() (string, error) {
	if cur := m.Current(); cur != nil && cur.DeviceID != "" {
		return cur.DeviceID, nil
	}

	var id string
	ok, err := m.store.Get(deviceKey, &id)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := m.store.Put(deviceKey, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
