// Package config persists the pipeline's flat key/value configuration and
// tracks the credential file produced by the out-of-band login flow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	configFile = "config.yaml"
	tokenFile  = "token.json"
)

// Store reads and writes configuration under one directory. Safe for
// concurrent use; the file is always loaded and saved whole.
type Store struct {
	mu  sync.Mutex
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load returns the saved configuration, or an empty map when none exists
// yet.
func (s *Store) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, configFile))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return values, nil
}

// Save overwrites the persisted configuration with the given values.
func (s *Store) Save(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, configFile), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// HasCredentials reports whether a saved credential file exists.
func (s *Store) HasCredentials() bool {
	_, err := os.Stat(filepath.Join(s.dir, tokenFile))
	return err == nil
}

// CredentialsPath points at the credential file the login flow writes.
func (s *Store) CredentialsPath() string {
	return filepath.Join(s.dir, tokenFile)
}

// Logout deletes the saved credential state. Logging out with no saved
// credentials is not an error.
func (s *Store) Logout() error {
	err := os.Remove(filepath.Join(s.dir, tokenFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
