package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Session is what a client persists to rejoin its game later
type Session struct {
	GameCode   string `json:"gameCode"`
	PlayerID   string `json:"playerId"`
	IsCreator  bool   `json:"isCreator"`
	PlayerName string `json:"playerName"`
}

// SessionStore persists at most one Session. Load returns nil when there
// is none.
type SessionStore interface {
	Load() (*Session, error)
	Save(Session) error
	Clear() error
}

// MemorySessionStore keeps the session in memory
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemorySessionStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileSessionStore keeps the session as JSON in a single file
type FileSessionStore struct {
	path string
	mu   sync.Mutex
}

var _ SessionStore = (*FileSessionStore)(nil)

// NewFileSessionStore creates a store backed by path
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath returns ~/.snl/session.json
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".snl", "session.json")
	}
	return filepath.Join(home, ".snl", "session.json")
}

// Path returns the backing file
func (f *FileSessionStore) Path() string {
	return f.path
}

func (f *FileSessionStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &s, nil
}

func (f *FileSessionStore) Save(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileSessionStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
