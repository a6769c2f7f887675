package closedloop

import (
	"strings"
	"testing"

	"github.com/nvandessel/hddl-sim/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string, hour float64, actor string, detail models.EventDetail) models.Event {
	e := models.NewEvent(id, hour, detail)
	e.ActorName = actor
	return e
}

func embedding(id string, hour float64, source, kind string) models.Event {
	return models.NewEvent(id, hour, &models.Embedding{EmbeddingID: id, SourceEventID: source, EmbeddingType: kind})
}

func baseline() models.Event {
	return embedding("EMB-HIST", -1, "history", "historical_baseline")
}

func countContaining(msgs []string, substr string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func TestValidate_NoLoopEventsHasNoErrors(t *testing.T) {
	s := &models.Scenario{
		ID: "quiet",
		Events: []models.Event{
			event("S1", 1, "Monitor", &models.Signal{}),
			event("A1", 2, "Analyst", &models.Annotation{}),
			event("D1", 3, "Pricing Bot", &models.Decision{}),
			event("X1", 4, "", &models.Other{}),
		},
	}

	r := Validate(s)
	assert.Empty(t, r.Errors)
	assert.True(t, r.Valid())
}

func TestValidate_EmptyAndNilScenario(t *testing.T) {
	for name, s := range map[string]*models.Scenario{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			r := Validate(s)
			assert.NotNil(t, r.Errors)
			assert.Empty(t, r.Errors)
			require.Len(t, r.Warnings, 1)
			assert.Contains(t, r.Warnings[0], "historical baseline")
		})
	}
}

func TestValidate_CompanionEmbeddingsSatisfyLoop(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("R0", 4.75, "Triage Bot", &models.Retrieval{RetrievedEmbeddings: []string{"EMB-HIST"}}),
			event("B1", 5, "Triage Bot", &models.BoundaryInteraction{BoundaryKind: models.BoundaryEscalated}),
			embedding("EMB-B1", 5.1, "B1", "boundary_interaction"),
			event("REV1", 6, "Claims Steward", &models.Revision{ResolvesEventID: "B1"}),
			embedding("EMB-REV1", 6.1, "REV1", "revision"),
		},
	}

	r := Validate(s)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidate_BoundaryWithoutEmbedding(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("B1", 5, "Triage Bot", &models.BoundaryInteraction{BoundaryKind: models.BoundaryEscalated}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "hour 5")
	assert.Contains(t, r.Errors[0], "B1")
	assert.Contains(t, r.Errors[0], `embeddingType "boundary_interaction"`)
	assert.Zero(t, countContaining(r.Errors, "Retrieval"))
	assert.Zero(t, countContaining(r.Errors, "Revision"))
}

func TestValidate_RevisionWithoutEmbedding(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("REV1", 7.5, "Claims Steward", &models.Revision{ResolvesEventID: "B1"}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "hour 7.5")
	assert.Contains(t, r.Errors[0], "REV1")
	assert.Contains(t, r.Errors[0], `embeddingType "revision"`)
	assert.Contains(t, r.Errors[0], `sourceEventId "REV1"`)
}

func TestValidate_RetrievalOfSameHourEmbeddingIsTimeParadox(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			embedding("EMB-1", 10, "S1", "signal"),
			event("R1", 10, "Triage Bot", &models.Retrieval{RetrievedEmbeddings: []string{"EMB-1"}}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, 1, countContaining(r.Errors, "time paradox"))
	assert.Contains(t, r.Errors[0], "hour 10")
	assert.Contains(t, r.Errors[0], "EMB-1")
}

func TestValidate_RetrievalOfFutureEmbedding(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("R1", 3, "Triage Bot", &models.Retrieval{RetrievedEmbeddings: []string{"EMB-1"}}),
			embedding("EMB-1", 8, "S1", "signal"),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "time paradox")
	assert.Contains(t, r.Errors[0], "hour 3")
	assert.Contains(t, r.Errors[0], "hour 8")
}

func TestValidate_RetrievalOfMissingEmbedding(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("R1", 3, "Triage Bot", &models.Retrieval{RetrievedEmbeddings: []string{"EMB-HIST", "EMB-GONE"}}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, 1, countContaining(r.Errors, "non-existent embedding"))
	assert.Contains(t, r.Errors[0], "EMB-GONE")
}

func TestValidate_ErrorsGroupedByRule(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("R1", 1, "Bot", &models.Retrieval{RetrievedEmbeddings: []string{"missing"}}),
			event("B1", 2, "Bot", &models.BoundaryInteraction{}),
			event("REV1", 3, "Steward", &models.Revision{}),
			event("B2", 4, "Bot", &models.BoundaryInteraction{}),
			event("REV2", 5, "Steward", &models.Revision{}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 5)
	assert.Contains(t, r.Errors[0], "REV1")
	assert.Contains(t, r.Errors[1], "REV2")
	assert.Contains(t, r.Errors[2], "B1")
	assert.Contains(t, r.Errors[3], "B2")
	assert.Contains(t, r.Errors[4], "non-existent embedding")
}

func TestValidate_OrderFollowsEventsNotHours(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("B-late", 9, "Bot", &models.BoundaryInteraction{}),
			event("B-early", 1, "Bot", &models.BoundaryInteraction{}),
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 2)
	assert.Contains(t, r.Errors[0], "B-late")
	assert.Contains(t, r.Errors[1], "B-early")
}

func TestValidate_DuplicateSourceLastWriteWins(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			event("B1", 5, "Bot", &models.BoundaryInteraction{}),
			embedding("EMB-a", 5.1, "B1", "boundary_interaction"),
			embedding("EMB-b", 5.2, "B1", "boundary_interaction"),
		},
	}

	r := Validate(s)
	assert.Empty(t, r.Errors)
}

func TestValidate_PrecedingRetrievalWindow(t *testing.T) {
	tests := []struct {
		name          string
		retrievalHour float64
		actor         string
		wantWarning   bool
	}{
		{"inside window", 4.75, "Triage Bot", false},
		{"window start", 4.5, "Triage Bot", false},
		{"too early", 4.4, "Triage Bot", true},
		{"same hour", 5, "Triage Bot", true},
		{"after boundary", 5.2, "Triage Bot", true},
		{"different actor", 4.75, "Pricing Bot", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.Scenario{
				Events: []models.Event{
					baseline(),
					event("R1", tt.retrievalHour, tt.actor, &models.Retrieval{RetrievedEmbeddings: []string{"EMB-HIST"}}),
					event("B1", 5, "Triage Bot", &models.BoundaryInteraction{}),
					embedding("EMB-B1", 5.5, "B1", "boundary_interaction"),
				},
			}
			r := Validate(s)
			got := countContaining(r.Warnings, "lacks preceding retrieval")
			if tt.wantWarning {
				assert.Equal(t, 1, got)
			} else {
				assert.Zero(t, got)
			}
		})
	}
}

func TestValidate_BaselineWarningOnce(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			embedding("EMB-1", 0, "x", "signal"),
			embedding("EMB-2", 3, "y", "signal"),
		},
	}

	r := Validate(s)
	assert.Equal(t, 1, countContaining(r.Warnings, "historical baseline"))

	s.Events = append(s.Events, embedding("EMB-0", -0.5, "z", "historical_baseline"))
	r = Validate(s)
	assert.Zero(t, countContaining(r.Warnings, "historical baseline"))
}

func TestValidate_StewardDecisionCapture(t *testing.T) {
	tests := []struct {
		name        string
		role        string
		captured    bool
		wantWarning bool
	}{
		{"steward uncaptured", "Claims Steward", false, true},
		{"steward captured", "Claims Steward", true, false},
		{"agent decision", "Pricing Agent", false, false},
		{"lowercase steward is not matched", "claims steward", false, false},
		{"substring match", "HR Stewardship Lead", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := event("D1", 6, "Dana", &models.Decision{})
			d.ActorRole = tt.role
			events := []models.Event{baseline(), d}
			if tt.captured {
				events = append(events, embedding("EMB-D1", 6.1, "D1", "decision"))
			}

			r := Validate(&models.Scenario{Events: events})
			assert.Empty(t, r.Errors)
			got := countContaining(r.Warnings, "not captured for agent learning")
			if tt.wantWarning {
				assert.Equal(t, 1, got)
			} else {
				assert.Zero(t, got)
			}
		})
	}
}

func TestValidate_WarningsGroupedByRule(t *testing.T) {
	d := event("D1", 1, "Dana", &models.Decision{})
	d.ActorRole = "Claims Steward"
	s := &models.Scenario{
		Events: []models.Event{
			d,
			event("B1", 2, "Bot", &models.BoundaryInteraction{}),
			embedding("EMB-B1", 2.1, "B1", "boundary_interaction"),
		},
	}

	r := Validate(s)
	require.Len(t, r.Warnings, 3)
	assert.Contains(t, r.Warnings[0], "lacks preceding retrieval")
	assert.Contains(t, r.Warnings[1], "historical baseline")
	assert.Contains(t, r.Warnings[2], "not captured for agent learning")
}

func TestValidate_EventsWithoutDetailUseTypeTag(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			baseline(),
			{EventID: "B1", Type: models.EventBoundaryInteraction, Hour: 5},
		},
	}

	r := Validate(s)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "B1")
}

func TestValidate_DoesNotMutateScenario(t *testing.T) {
	s := &models.Scenario{
		Events: []models.Event{
			event("B1", 5, "Bot", &models.BoundaryInteraction{}),
			event("R1", 1, "Bot", &models.Retrieval{RetrievedEmbeddings: []string{"nope"}}),
		},
	}
	before := s.Clone()

	Validate(s)
	assert.Equal(t, before, s)
}
