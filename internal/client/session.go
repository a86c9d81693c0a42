// Package client is the Go client of the goals API. It owns the local
// session (who is logged in and with which token), attaches the token to
// every request and decides which views an unauthenticated user may reach.
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

// SessionKey is the storage key the session lives under.
const SessionKey = "user"

// Profile is the public part of an account.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Session is what the client persists between runs. It serialises flat,
// exactly like the user object returned by login and registration.
type Session struct {
	Profile
	Token string `json:"token"`
}

// Store persists at most one session.
type Store interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// FileStore keeps the session in <dir>/user.json, readable only by the
// owner.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, SessionKey+".json")}
}

// DefaultDir returns the per-user config directory for the client.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "goals"), nil
}

// Load reads the stored session. A missing or unreadable file is reported
// as no session; only I/O errors other than "not exist" are returned.
func (s *FileStore) Load() (Session, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil || session.Token == "" {
		return Session{}, false, nil
	}
	return session, true, nil
}

// Save writes the session atomically.
func (s *FileStore) Save(session Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".user-*.json")
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear removes the stored session.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

func (m *MemoryStore) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return *m.session, true, nil
}

func (m *MemoryStore) Save(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &session
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
