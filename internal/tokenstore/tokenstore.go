// Package tokenstore persists the bearer token and its expiry timestamp in a
// small JSON file. It is the only local state the client keeps besides logs.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type tokenFile struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds; 0 = unknown
}

// Store is a mutex-guarded file-backed token store. Persist failures are
// returned to the caller, who logs and continues; the in-memory session stays
// the source of truth for the current process lifetime.
type Store struct {
	path string

	mu   sync.Mutex
	data tokenFile
}

// New opens (or lazily creates) the store at path. A missing or empty file
// reads as "no token".
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("token store path is required")
	}
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists the token, keeping any previously stored expiry.
func (s *Store) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Token = token
	return s.persistLocked()
}

// Get returns the stored token, or "" when none is persisted.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Token
}

// Clear removes the token and expiry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = tokenFile{}
	return s.persistLocked()
}

// SetExpiry records the token expiry as a unix timestamp. Informational only;
// the backend remains the authority on validity.
func (s *Store) SetExpiry(exp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ExpiresAt = exp
	return s.persistLocked()
}

// GetExpiry returns the stored expiry and whether one is known.
func (s *Store) GetExpiry() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ExpiresAt, s.data.ExpiresAt != 0
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read token store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return fmt.Errorf("decode token store file: %w", err)
	}
	return nil
}

func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir token store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write token store file: %w", err)
	}
	return nil
}
