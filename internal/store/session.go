package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SessionKeyCookies is the session_state key holding the sealed cookie jar
const SessionKeyCookies = "cookies"

// SessionStore persists opaque session blobs
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save stores value under key, replacing any previous blob
func (s *SessionStore) Save(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save session %q: %w", key, err)
	}
	return nil
}

// Load returns the blob stored under key. A missing key yields nil, nil.
func (s *SessionStore) Load(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM session_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", key, err)
	}
	return value, nil
}

// Delete removes the blob stored under key
func (s *SessionStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM session_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete session %q: %w", key, err)
	}
	return nil
}
