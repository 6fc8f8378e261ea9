// Package msgstore pairs downloaded memo audio files with their
// metadata. The audio directory and the metadata document are owned
// exclusively by this package; nothing else writes either.
package msgstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alecdray/talkie/internal/store"
)

const (
	metadataKey = "messages"
	audioSubdir = "audio"

	// FileExt is the extension every cached memo file carries,
	// regardless of what the sender recorded with.
	FileExt = ".ogg"
)

var (
	// ErrFileMissing is returned by Upsert when the audio file the
	// metadata should describe does not exist on disk.
	ErrFileMissing = errors.New("audio file missing")

	// ErrStatusRegression is returned when a played status update
	// would move backwards.
	ErrStatusRegression = errors.New("played status cannot move backwards")
)

type PlayedStatus string

const (
	Unplayed PlayedStatus = "UNPLAYED"
	Started  PlayedStatus = "STARTED"
	Finished PlayedStatus = "FINISHED"
)

func (s PlayedStatus) rank() int {
	switch s {
	case Started:
		return 1
	case Finished:
		return 2
	default:
		return 0
	}
}

type Message struct {
	ID           string       `json:"id"`
	FilePath     string       `json:"file_path"`
	SenderUserID string       `json:"sender_user_id"`
	Played       PlayedStatus `json:"played_status"`
	Duration     float64      `json:"duration,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
}

type Store struct {
	kv  *store.Store
	dir string

	// mu serializes whole read-modify-write cycles on the metadata
	// document; concurrent prefetchers would otherwise lose entries.
	mu sync.Mutex
}

func New(kv *store.Store, dataDir string) *Store {
	return &Store{kv: kv, dir: filepath.Join(dataDir, audioSubdir)}
}

// EnsureDirectory creates the audio directory. Already existing is
// success.
func (s *Store) EnsureDirectory() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("audio dir: %w", err)
	}
	return nil
}

// FileForID builds the cache path for a message id. It performs no I/O
// and makes no claim the file exists.
func (s *Store) FileForID(id string) string {
	return filepath.Join(s.dir, id+FileExt)
}

// Upsert records metadata for the audio file at path, replacing any
// prior entry for the same id wholesale. The file must already exist.
func (s *Store) Upsert(path string, meta Message) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	meta.FilePath = path
	if meta.Played == "" {
		meta.Played = Unplayed
	}
	entries[meta.ID] = meta
	return s.save(entries)
}

// Get returns the metadata entry for id. It does not verify the file
// still exists; see Stale.
func (s *Store) Get(id string) (*Message, bool, error) {
	entries, err := s.load()
	if err != nil {
		return nil, false, err
	}
	m, ok := entries[id]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

// GetAll returns every entry, oldest first.
func (s *Store) GetAll() ([]Message, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(entries))
	for _, m := range entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Stale reports whether a metadata entry dangles: its audio file has
// disappeared underneath it (OS-evicted storage, manual deletion).
func (s *Store) Stale(m *Message) bool {
	if m == nil {
		return true
	}
	_, err := os.Stat(m.FilePath)
	return err != nil
}

// Delete removes the audio file then the metadata entry. Absent ids are
// a no-op; a file already gone is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	m, ok := entries[id]
	if !ok {
		return nil
	}

	if err := os.Remove(m.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", m.FilePath, err)
	}

	delete(entries, id)
	return s.save(entries)
}

// DeleteAll wipes the audio directory and all metadata, then recreates
// the empty directory so later writes need no extra setup.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove audio dir: %w", err)
	}
	if err := s.save(map[string]Message{}); err != nil {
		return err
	}
	return s.EnsureDirectory()
}

// UpdatePlayedStatus advances the played marker for id. Unknown ids are
// a no-op; backwards transitions are rejected.
func (s *Store) UpdatePlayedStatus(id string, status PlayedStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	m, ok := entries[id]
	if !ok {
		return nil
	}
	if status.rank() < m.Played.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, m.Played, status)
	}

	m.Played = status
	entries[id] = m
	return s.save(entries)
}

func (s *Store) load() (map[string]Message, error) {
	entries := map[string]Message{}
	if _, err := s.kv.Get(metadataKey, &entries); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return entries, nil
}

func (s *Store) save(entries map[string]Message) error {
	if err := s.kv.Put(metadataKey, entries); err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	return nil
}
