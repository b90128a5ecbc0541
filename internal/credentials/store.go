// Package credentials persists per-provider credential records as a single
// keyed JSON file under the user config directory.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is one stored credential. Type "oauth" carries a refresh token plus
// an optional short-lived access token with its expiry (unix milliseconds);
// type "api" carries a plain API key.
type Record struct {
	Type    string `json:"type"`
	Refresh string `json:"refresh,omitempty"`
	Access  string `json:"access,omitempty"`
	Expires int64  `json:"expires,omitempty"`
	Key     string `json:"key,omitempty"`
}

const (
	TypeOAuth = "oauth"
	TypeAPI   = "api"
)

// Store reads and writes credential records keyed by provider name.
type Store struct {
	path string
}

// NewStore returns a store backed by $XDG_CONFIG_HOME/th/auth.json.
func NewStore() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "th", "auth.json")), nil
}

// NewStoreAt returns a store backed by an explicit file path. Used by tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for a provider, or ok=false when none is stored.
func (s *Store) Get(provider string) (Record, bool, error) {
	records, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[provider]
	return rec, ok, nil
}

// Set stores a record for a provider, creating the file with 0600 perms.
func (s *Store) Set(provider string, rec Record) error {
	records, err := s.load()
	if err != nil {
		return err
	}
	records[provider] = rec
	return s.save(records)
}

// Remove deletes a provider's record. Removing a missing record is not an error.
func (s *Store) Remove(provider string) error {
	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[provider]; !ok {
		return nil
	}
	delete(records, provider)
	return s.save(records)
}

func (s *Store) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if records == nil {
		records = map[string]Record{}
	}
	return records, nil
}

func (s *Store) save(records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
