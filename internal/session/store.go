// Package session owns the locally persisted proof of identity: an opaque
// token and the display name shown next to it. Absence of either means
// logged out. The store knows nothing about how the session was obtained.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bell-ha/artist-promotion-platform/internal/model"
)

// Session is the persisted record. Both fields are required for the session
// to count as logged in.
type Session struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
}

// Store persists the session as a small JSON file at a caller-controlled
// path. It is the only component allowed to write or clear the record.
//
// Storage being unavailable (unreadable directory, full disk) is a fatal
// environment error: every method propagates it instead of masking it.
type Store struct {
	path string

	mu       sync.Mutex
	watchers []func()
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Restore reads the persisted session. It returns (nil, nil) — logged out —
// when no session file exists, when either field is empty, or when the
// display name still carries the unassigned placeholder pattern: a token
// persisted mid-way through Google nickname assignment must not surface as a
// logged-in session.
func (s *Store) Restore() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading store: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: decoding store: %w", err)
	}

	if sess.Token == "" || sess.DisplayName == "" {
		return nil, nil
	}
	if strings.HasPrefix(sess.DisplayName, model.PlaceholderPrefix) {
		return nil, nil
	}

	return &sess, nil
}

// Commit persists a session, replacing any prior one. Callers invoke it only
// after a server has confirmed the credentials or exchange. The write is
// atomic (temp file + rename) so a crash never leaves a half-written record.
func (s *Store) Commit(token, displayName string) error {
	if token == "" || displayName == "" {
		return fmt.Errorf("session: refusing to commit incomplete session")
	}

	data, err := json.Marshal(Session{Token: token, DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("session: encoding session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("session: creating store directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("session: writing store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: replacing store: %w", err)
	}

	s.notifyWatchers()
	return nil
}

// Clear removes the persisted session. Dependent views learn about it
// through Watch rather than a full reload.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: clearing store: %w", err)
	}

	s.notifyWatchers()
	return nil
}

// Watch registers fn to run after every Commit and Clear. Views that render
// the logged-in state re-read the session from their callback.
func (s *Store) Watch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Store) notifyWatchers() {
	s.mu.Lock()
	fns := make([]func(), len(s.watchers))
	copy(fns, s.watchers)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
