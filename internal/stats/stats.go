// Package stats summarizes the shape of a scenario: what happens on its
// timeline and who is responsible for it.
package stats

import (
	"math"
	"slices"

	"github.com/nvandessel/hddl-sim/internal/models"
)

// UnknownType is the key used for events whose type is missing.
const UnknownType = "unknown"

// FleetSummary is one steward's fleet.
type FleetSummary struct {
	StewardRole string `json:"steward_role"`
	Agents      int    `json:"agents"`
}

// Summary describes a scenario.
type Summary struct {
	ScenarioID    string  `json:"scenario_id"`
	Title         string  `json:"title,omitempty"`
	DurationHours float64 `json:"duration_hours"`

	Events         int            `json:"events"`
	EventsByType   map[string]int `json:"events_by_type"`
	BoundaryKinds  map[string]int `json:"boundary_kinds"`
	UnknownKinds   int            `json:"unknown_boundary_kinds"` // not escalated, overridden or deferred
	EmbeddingTypes map[string]int `json:"embedding_types"`
	FirstHour      float64        `json:"first_hour"`
	LastHour       float64        `json:"last_hour"`
	Baseline       int            `json:"baseline_embeddings"` // embeddings before hour 0
	OutOfRange     int            `json:"events_out_of_range"` // events after durationHours

	Envelopes            int            `json:"envelopes"`
	Fleets               []FleetSummary `json:"fleets"`
	Agents               int            `json:"agents"`
	StewardRoles         []string       `json:"steward_roles"`
	StewardLimitExceeded bool           `json:"steward_limit_exceeded"`
}

// Summarize computes the summary for s.
func Summarize(s *models.Scenario) Summary {
	if s == nil {
		s = &models.Scenario{}
	}

	sum := Summary{
		ScenarioID:     s.ID,
		Title:          s.Title,
		DurationHours:  s.DurationHours,
		Events:         len(s.Events),
		EventsByType:   make(map[string]int),
		BoundaryKinds:  make(map[string]int),
		EmbeddingTypes: make(map[string]int),
		Envelopes:      len(s.Envelopes),
		Fleets:         make([]FleetSummary, 0, len(s.Fleets)),
		StewardRoles:   make([]string, 0, len(s.Fleets)),
	}

	c := &counter{sum: &sum}
	first, last := math.Inf(1), math.Inf(-1)
	for i := range s.Events {
		e := &s.Events[i]
		e.Accept(c)
		first = min(first, e.Hour)
		last = max(last, e.Hour)
		if s.DurationHours > 0 && e.Hour > s.DurationHours {
			sum.OutOfRange++
		}
	}
	if len(s.Events) > 0 {
		sum.FirstHour, sum.LastHour = first, last
	}

	for _, f := range s.Fleets {
		sum.Fleets = append(sum.Fleets, FleetSummary{StewardRole: f.StewardRole, Agents: len(f.Agents)})
		sum.Agents += len(f.Agents)
		if !slices.Contains(sum.StewardRoles, f.StewardRole) {
			sum.StewardRoles = append(sum.StewardRoles, f.StewardRole)
		}
	}
	sum.StewardLimitExceeded = len(sum.StewardRoles) > models.MaxStewardRoles

	return sum
}

// counter tallies events by kind.
type counter struct {
	sum *Summary
}

func (c *counter) count(e *models.Event) {
	t := string(e.Type)
	if t == "" {
		t = UnknownType
	}
	c.sum.EventsByType[t]++
}

func (c *counter) VisitBoundaryInteraction(e *models.Event, d *models.BoundaryInteraction) {
	c.count(e)
	kind := string(d.BoundaryKind)
	if kind == "" {
		kind = UnknownType
	}
	c.sum.BoundaryKinds[kind]++
	if !d.BoundaryKind.Valid() {
		c.sum.UnknownKinds++
	}
}

func (c *counter) VisitEmbedding(e *models.Event, d *models.Embedding) {
	c.count(e)
	typ := d.EmbeddingType
	if typ == "" {
		typ = UnknownType
	}
	c.sum.EmbeddingTypes[typ]++
	if e.Hour < 0 {
		c.sum.Baseline++
	}
}

func (c *counter) VisitRevision(e *models.Event, d *models.Revision)     { c.count(e) }
func (c *counter) VisitRetrieval(e *models.Event, d *models.Retrieval)   { c.count(e) }
func (c *counter) VisitDecision(e *models.Event, d *models.Decision)     { c.count(e) }
func (c *counter) VisitSignal(e *models.Event, d *models.Signal)         { c.count(e) }
func (c *counter) VisitAnnotation(e *models.Event, d *models.Annotation) { c.count(e) }
func (c *counter) VisitOther(e *models.Event)                            { c.count(e) }
