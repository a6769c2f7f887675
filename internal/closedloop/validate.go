// Package closedloop checks the referential and temporal integrity of a
// scenario's event graph.
//
// Integrity violations (every boundary interaction and revision has a memory
// trace, retrievals only recall earlier memories) are reported as errors.
// Realism gaps (no retrieval before an escalation, no historical baseline,
// steward decisions that never become memories) are reported as warnings.
package closedloop

import (
	"fmt"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/models"
)

// StewardMarker is the substring of actorRole that marks a decision as a
// steward judgment.
const StewardMarker = "Steward"

// RetrievalWindowHours is how far before a boundary interaction a retrieval
// by the same actor must happen to count as informing it.
const RetrievalWindowHours = 0.5

// Report is the outcome of validating one scenario.
type Report struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the scenario has no integrity violations.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks a scenario and returns its errors and warnings.
//
// Errors come out grouped by rule (missing revision embeddings, missing
// boundary embeddings, bad retrievals) and, within a rule, in event order.
// Warnings follow the same scheme (unprepared boundaries, missing baseline,
// uncaptured steward decisions). Validate never fails; a nil scenario is
// treated as empty.
func Validate(s *models.Scenario) Report {
	if s == nil {
		s = &models.Scenario{}
	}

	idx := buildIndex(s.Events)
	c := &checker{idx: idx}
	for i := range s.Events {
		s.Events[i].Accept(c)
	}

	var r Report
	r.Errors = make([]string, 0, len(c.revisionErrs)+len(c.boundaryErrs)+len(c.retrievalErrs))
	r.Errors = append(r.Errors, c.revisionErrs...)
	r.Errors = append(r.Errors, c.boundaryErrs...)
	r.Errors = append(r.Errors, c.retrievalErrs...)

	r.Warnings = make([]string, 0, len(c.preparationWarns)+len(c.decisionWarns)+1)
	r.Warnings = append(r.Warnings, c.preparationWarns...)
	if !idx.hasBaseline {
		r.Warnings = append(r.Warnings,
			"Scenario lacks a historical baseline: add at least one embedding event with hour < 0 so agents start with prior memory")
	}
	r.Warnings = append(r.Warnings, c.decisionWarns...)

	return r
}

// index holds the lookups built before the rule pass.
type index struct {
	embeddingsByID     map[string]*models.Event
	embeddingsBySource map[string]*models.Event
	retrievalHours     map[string][]float64 // actorName -> retrieval hours
	hasBaseline        bool
}

func buildIndex(events []models.Event) *index {
	idx := &index{
		embeddingsByID:     make(map[string]*models.Event),
		embeddingsBySource: make(map[string]*models.Event),
		retrievalHours:     make(map[string][]float64),
	}
	for i := range events {
		e := &events[i]
		switch d := e.Payload().(type) {
		case *models.Embedding:
			if d.EmbeddingID != "" {
				idx.embeddingsByID[d.EmbeddingID] = e
			}
			// Last write wins for duplicated sources.
			if d.SourceEventID != "" {
				idx.embeddingsBySource[d.SourceEventID] = e
			}
			if e.Hour < 0 {
				idx.hasBaseline = true
			}
		case *models.Retrieval:
			idx.retrievalHours[e.ActorName] = append(idx.retrievalHours[e.ActorName], e.Hour)
		}
	}
	return idx
}

// hasRetrievalBefore reports whether actor retrieved memories in
// [hour-RetrievalWindowHours, hour).
func (idx *index) hasRetrievalBefore(actor string, hour float64) bool {
	for _, h := range idx.retrievalHours[actor] {
		if h >= hour-RetrievalWindowHours && h < hour {
			return true
		}
	}
	return false
}

// checker applies the rules to each event, collecting findings per rule so
// the report can be assembled in rule order after a single pass.
type checker struct {
	idx *index

	revisionErrs  []string
	boundaryErrs  []string
	retrievalErrs []string

	preparationWarns []string
	decisionWarns    []string
}

func (c *checker) VisitRevision(e *models.Event, d *models.Revision) {
	if _, ok := c.idx.embeddingsBySource[e.EventID]; ok {
		return
	}
	c.revisionErrs = append(c.revisionErrs, fmt.Sprintf(
		"Revision at hour %s (%s) has no embedding: add an embedding event with embeddingType %q and sourceEventId %q",
		models.FormatHour(e.Hour), e.EventID, string(models.EventRevision), e.EventID))
}

func (c *checker) VisitBoundaryInteraction(e *models.Event, d *models.BoundaryInteraction) {
	if _, ok := c.idx.embeddingsBySource[e.EventID]; !ok {
		c.boundaryErrs = append(c.boundaryErrs, fmt.Sprintf(
			"Boundary interaction at hour %s (%s) has no embedding: add an embedding event with embeddingType %q and sourceEventId %q",
			models.FormatHour(e.Hour), e.EventID, string(models.EventBoundaryInteraction), e.EventID))
	}

	if !c.idx.hasRetrievalBefore(e.ActorName, e.Hour) {
		c.preparationWarns = append(c.preparationWarns, fmt.Sprintf(
			"Boundary interaction at hour %s (%s) lacks preceding retrieval: %s should retrieve relevant embeddings within %s hours before escalating",
			models.FormatHour(e.Hour), e.EventID, actorLabel(e.ActorName), models.FormatHour(RetrievalWindowHours)))
	}
}

func (c *checker) VisitRetrieval(e *models.Event, d *models.Retrieval) {
	for _, ref := range d.RetrievedEmbeddings {
		emb, ok := c.idx.embeddingsByID[ref]
		if !ok {
			c.retrievalErrs = append(c.retrievalErrs, fmt.Sprintf(
				"Retrieval at hour %s (%s) references non-existent embedding %s",
				models.FormatHour(e.Hour), e.EventID, ref))
			continue
		}
		if emb.Hour >= e.Hour {
			c.retrievalErrs = append(c.retrievalErrs, fmt.Sprintf(
				"Retrieval at hour %s (%s) has a time paradox: embedding %s is from hour %s, which is not before the retrieval",
				models.FormatHour(e.Hour), e.EventID, ref, models.FormatHour(emb.Hour)))
		}
	}
}

func (c *checker) VisitDecision(e *models.Event, d *models.Decision) {
	if !strings.Contains(e.ActorRole, StewardMarker) {
		return
	}
	if _, ok := c.idx.embeddingsBySource[e.EventID]; ok {
		return
	}
	c.decisionWarns = append(c.decisionWarns, fmt.Sprintf(
		"Steward decision at hour %s (%s) by %s is not captured for agent learning: add an embedding with sourceEventId %q",
		models.FormatHour(e.Hour), e.EventID, e.ActorRole, e.EventID))
}

// Embeddings, signals, annotations and unknown kinds carry no obligations.
func (c *checker) VisitEmbedding(e *models.Event, d *models.Embedding)   {}
func (c *checker) VisitSignal(e *models.Event, d *models.Signal)         {}
func (c *checker) VisitAnnotation(e *models.Event, d *models.Annotation) {}
func (c *checker) VisitOther(e *models.Event)                            {}

func actorLabel(name string) string {
	if name == "" {
		return "the acting agent"
	}
	return name
}
