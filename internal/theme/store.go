package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// StorageKey is the key the mode is saved under
const StorageKey = "interface_color_theme"

// Store persists the selected mode in a json file
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store writing to path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the saved mode. Auto is returned when nothing was saved yet.
func (s *Store) Load() (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return Auto, err
	}
	raw, ok := entries[StorageKey]
	if !ok {
		return Auto, nil
	}
	var m Mode
	if err := json.Unmarshal(raw, &m); err != nil {
		return Auto, err
	}
	return m, nil
}

// Save writes mode. Other keys of the file are kept.
func (s *Store) Save(mode Mode) error {
	raw, err := json.Marshal(mode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[StorageKey] = raw
	content, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating theme store directory: %w", err)
		}
	}
	return os.WriteFile(s.path, content, 0o600)
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)
	content, err := os.ReadFile(filepath.Clean(s.path))
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading theme store: %w", err)
	}
	if len(content) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("parsing theme store: %w", err)
	}
	return entries, nil
}
