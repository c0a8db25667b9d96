// Package prefs persists user preferences (theme, search history) as a JSON
// file. Writes go through a temp file plus rename so a crash never leaves a
// half-written preferences file behind.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// MaxHistory bounds the stored search history.
	MaxHistory = 10

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

type data struct {
	Theme         string   `json:"theme"`
	SearchHistory []string `json:"searchHistory"`
}

// Store loads and persists preferences. All methods are safe for concurrent
// use.
type Store struct {
	mu   sync.Mutex
	path string
	data data
}

// Open reads the preferences file, creating defaults when it is missing or
// unreadable. A corrupt file is replaced rather than treated as fatal.
func Open(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".image2doc", "prefs.json")
	}
	s := &Store{path: path, data: data{Theme: ThemeSystem}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	var d data
	if err := json.Unmarshal(raw, &d); err != nil {
		return s, nil
	}
	if d.Theme == "" {
		d.Theme = ThemeSystem
	}
	if len(d.SearchHistory) > MaxHistory {
		d.SearchHistory = d.SearchHistory[:MaxHistory]
	}
	s.data = d
	return s, nil
}

// Theme returns the current theme.
func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Theme
}

// SetTheme validates and persists the theme.
func (s *Store) SetTheme(theme string) error {
	switch theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return fmt.Errorf("unknown theme %q", theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Theme = theme
	return s.saveLocked()
}

// SearchHistory returns the stored searches, most recent first.
func (s *Store) SearchHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.data.SearchHistory))
	copy(out, s.data.SearchHistory)
	return out
}

// AddSearch records a search term at the front of the history. Repeated
// terms move to the front instead of duplicating, and the history is capped
// at MaxHistory entries.
func (s *Store) AddSearch(term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := []string{term}
	for _, existing := range s.data.SearchHistory {
		if strings.EqualFold(existing, term) {
			continue
		}
		history = append(history, existing)
		if len(history) == MaxHistory {
			break
		}
	}
	s.data.SearchHistory = history
	return s.saveLocked()
}

// ClearHistory wipes the search history.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SearchHistory = nil
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "prefs-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
