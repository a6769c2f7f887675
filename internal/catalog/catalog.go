// Package catalog stores named scenarios and patches behind an explicit
// handle, replacing the process-wide scenario registry.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/hddl-sim/internal/models"
)

// ErrNotFound is returned when no entry has the requested name.
var ErrNotFound = errors.New("catalog entry not found")

// Kind distinguishes complete scenarios from patches.
type Kind string

const (
	KindScenario Kind = "scenario"
	KindPatch    Kind = "patch"
)

// ParseKind maps a flag value to a Kind. The empty string means "any" and
// is returned as-is.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindScenario, KindPatch:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid catalog kind: %s (valid: scenario, patch)", s)
	}
}

// Entry is a named scenario or patch.
type Entry struct {
	Name     string           `json:"name"`
	Kind     Kind             `json:"kind"`
	Scenario *models.Scenario `json:"scenario"`
	Source   string           `json:"source,omitempty"` // file the entry was imported from
}

// EntryInfo summarizes an entry without its scenario body.
type EntryInfo struct {
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	ScenarioID  string    `json:"scenario_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Events      int       `json:"events"`
	Source      string    `json:"source,omitempty"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Catalog is a key-value store of scenarios and patches.
type Catalog interface {
	// Register inserts or replaces the entry with e.Name.
	Register(ctx context.Context, e Entry) error

	// Get returns the named entry, or ErrNotFound.
	Get(ctx context.Context, name string) (*Entry, error)

	// List returns entries sorted by name. An empty kind lists everything.
	List(ctx context.Context, kind Kind) ([]EntryInfo, error)

	// Remove deletes the named entry, or returns ErrNotFound.
	Remove(ctx context.Context, name string) error

	// Clear deletes every entry.
	Clear(ctx context.Context) error

	Close() error
}

func validateEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("entry name is required")
	}
	if e.Kind != KindScenario && e.Kind != KindPatch {
		return fmt.Errorf("entry %s: invalid kind %q", e.Name, e.Kind)
	}
	if e.Scenario == nil {
		return fmt.Errorf("entry %s: scenario is required", e.Name)
	}
	return nil
}

func infoFor(e Entry, hash string, updated time.Time) EntryInfo {
	return EntryInfo{
		Name:        e.Name,
		Kind:        e.Kind,
		ScenarioID:  e.Scenario.ID,
		Title:       e.Scenario.Title,
		Events:      len(e.Scenario.Events),
		Source:      e.Source,
		ContentHash: hash,
		UpdatedAt:   updated,
	}
}
