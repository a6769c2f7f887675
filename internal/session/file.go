package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/models"
)

// stateFile is the default session state filename.
const stateFile = "session-state.json"

// persistedState is the on-disk representation of a session.
// It captures what is needed to resume work across MCP server restarts.
type persistedState struct {
	ID       string           `json:"id"`
	BaseName string           `json:"base_name"`
	Base     *models.Scenario `json:"base"`
	Current  *models.Scenario `json:"current"`
	History  []string         `json:"history"`
}

// SaveState persists the session to a JSON file in the given directory.
// The directory must already exist.
func SaveState(s *Session, dir string) error {
	s.mu.RLock()
	ps := persistedState{
		ID:       s.id,
		BaseName: s.baseName,
		Base:     s.base,
		Current:  s.current,
		History:  s.history,
	}
	data, err := json.MarshalIndent(ps, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	path := StateFilePath(dir)

	// Write atomically via temp file + rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session state temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session state file: %w", err)
	}

	return nil
}

// LoadState restores a session from the given directory. If no state file
// exists, it returns a new empty session.
func LoadState(dir string, cat catalog.Catalog, opts Options) (*Session, error) {
	data, err := os.ReadFile(StateFilePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return New(cat, opts), nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("unmarshaling session state: %w", err)
	}

	s := New(cat, opts)
	if ps.ID != "" {
		s.id = ps.ID
	}
	s.baseName = ps.BaseName
	s.base = ps.Base
	s.current = ps.Current
	if s.current == nil && s.base != nil {
		s.current = s.base.Clone()
	}
	s.history = slices.Clone(ps.History)
	return s, nil
}

// StateFilePath returns the expected path for the session state file in the given directory.
func StateFilePath(dir string) string {
	return filepath.Join(dir, stateFile)
}
