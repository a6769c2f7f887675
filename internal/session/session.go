// Package session holds the scenario a user is working on and applies named
// patches from a catalog to it, validating after every step.
//
// All public methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/hddl-sim/internal/catalog"
	"github.com/nvandessel/hddl-sim/internal/closedloop"
	"github.com/nvandessel/hddl-sim/internal/logging"
	"github.com/nvandessel/hddl-sim/internal/merge"
	"github.com/nvandessel/hddl-sim/internal/models"
)

// ErrNoScenario is returned when a patch is applied before any scenario is loaded.
var ErrNoScenario = errors.New("no scenario loaded")

// Options configures a Session. Zero values are usable.
type Options struct {
	// Merger applies patches. Defaults to a base_wins merger.
	Merger *merge.Merger

	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// AuditLog records applied patches. May be nil.
	AuditLog *logging.AuditLog
}

// Outcome describes one applied patch.
type Outcome struct {
	Patch             string                   `json:"patch"`
	ScenarioID        string                   `json:"scenario_id"`
	Events            int                      `json:"events"`
	DurationHours     float64                  `json:"duration_hours"`
	EnvelopeConflicts []merge.EnvelopeConflict `json:"envelope_conflicts,omitempty"`
	RekeyedEvents     []merge.RekeyedEvent     `json:"rekeyed_events,omitempty"`
	Report            closedloop.Report        `json:"report"`
	AppliedAt         time.Time                `json:"applied_at"`
}

// Session tracks a loaded scenario and the patches applied on top of it.
type Session struct {
	mu      sync.RWMutex
	id      string
	catalog catalog.Catalog
	merger  *merge.Merger
	logger  *slog.Logger
	audit   *logging.AuditLog

	baseName string
	base     *models.Scenario
	current  *models.Scenario
	history  []string
}

// New creates an empty session reading from cat.
func New(cat catalog.Catalog, opts Options) *Session {
	if opts.Merger == nil {
		opts.Merger = merge.NewMerger(merge.Config{Logger: opts.Logger})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		id:      uuid.NewString(),
		catalog: cat,
		merger:  opts.Merger,
		logger:  opts.Logger,
		audit:   opts.AuditLog,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Load makes the named catalog entry the current scenario and clears the
// patch history.
func (s *Session) Load(ctx context.Context, name string) error {
	e, err := s.catalog.Get(ctx, name)
	if err != nil {
		return err
	}
	s.LoadScenario(name, e.Scenario)
	return nil
}

// LoadScenario makes sc the current scenario under name.
func (s *Session) LoadScenario(name string, sc *models.Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseName = name
	s.base = sc.Clone()
	s.current = sc.Clone()
	s.history = nil

	s.logger.Debug("session scenario loaded", "session", s.id, "scenario", name, "events", len(sc.Events))
}

// ApplyPatch merges the named catalog entry onto the current scenario.
func (s *Session) ApplyPatch(ctx context.Context, name string) (Outcome, error) {
	e, err := s.catalog.Get(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	return s.Apply(name, e.Scenario)
}

// Apply merges patch onto the current scenario, replaces the current
// scenario with the result and validates it.
func (s *Session) Apply(name string, patch *models.Scenario) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Outcome{}, ErrNoScenario
	}

	res := s.merger.Merge(s.current, patch)
	report := closedloop.Validate(res.Scenario)

	s.current = res.Scenario
	s.history = append(s.history, name)

	out := Outcome{
		Patch:             name,
		ScenarioID:        res.Scenario.ID,
		Events:            len(res.Scenario.Events),
		DurationHours:     res.Scenario.DurationHours,
		EnvelopeConflicts: res.EnvelopeConflicts,
		RekeyedEvents:     res.RekeyedEvents,
		Report:            report,
		AppliedAt:         time.Now().UTC(),
	}

	s.logger.Debug("patch applied",
		"session", s.id,
		"patch", name,
		"events", out.Events,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))

	fields := map[string]any{
		"session":            s.id,
		"base":               s.baseName,
		"patch":              name,
		"events":             out.Events,
		"envelope_conflicts": len(out.EnvelopeConflicts),
		"rekeyed_events":     len(out.RekeyedEvents),
		"errors":             len(report.Errors),
		"warnings":           len(report.Warnings),
	}
	if s.audit.Trace() {
		fields["report"] = report
	}
	s.audit.Record("session_apply", fields)

	return out, nil
}

// Current returns a copy of the current scenario, or nil before Load.
func (s *Session) Current() *models.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// BaseName returns the name the current scenario was loaded under.
func (s *Session) BaseName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseName
}

// History returns the names of applied patches, oldest first.
func (s *Session) History() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// Validate checks the current scenario.
func (s *Session) Validate() (closedloop.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return closedloop.Report{}, ErrNoScenario
	}
	return closedloop.Validate(s.current), nil
}

// Reset discards applied patches and returns to the loaded scenario.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return fmt.Errorf("reset: %w", ErrNoScenario)
	}
	s.current = s.base.Clone()
	s.history = nil
	return nil
}
