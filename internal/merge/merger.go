// Package merge applies scenario-shaped patches on top of a base scenario.
package merge

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/nvandessel/hddl-sim/internal/models"
)

// EnvelopePolicy decides which side wins when base and patch both define
// an envelope with the same id.
type EnvelopePolicy string

const (
	// EnvelopeBaseWins keeps the base envelope. Patches can add envelopes
	// but not edit existing ones.
	EnvelopeBaseWins EnvelopePolicy = "base_wins"

	// EnvelopePatchWins replaces the base envelope in place.
	EnvelopePatchWins EnvelopePolicy = "patch_wins"
)

// ParseEnvelopePolicy maps a config or flag value to a policy.
// The empty string selects EnvelopeBaseWins.
func ParseEnvelopePolicy(s string) (EnvelopePolicy, error) {
	switch EnvelopePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvelopeBaseWins:
		return EnvelopeBaseWins, nil
	case EnvelopePatchWins:
		return EnvelopePatchWins, nil
	default:
		return "", fmt.Errorf("invalid envelope policy: %s (valid: base_wins, patch_wins)", s)
	}
}

// EnvelopeConflict records an envelope defined differently by base and patch.
type EnvelopeConflict struct {
	EnvelopeID string         `json:"envelope_id"`
	Kept       string         `json:"kept"`        // "base" or "patch"
	Policy     EnvelopePolicy `json:"policy"`
}

// RekeyedEvent records a patch event whose id collided and was versioned.
type RekeyedEvent struct {
	OriginalID string `json:"original_id"`
	NewID      string `json:"new_id"`
}

// Result is the outcome of a merge.
type Result struct {
	Scenario          *models.Scenario   `json:"scenario"`
	EnvelopeConflicts []EnvelopeConflict `json:"envelope_conflicts,omitempty"`
	RekeyedEvents     []RekeyedEvent     `json:"rekeyed_events,omitempty"`
}

// Config configures a Merger.
type Config struct {
	// EnvelopePolicy resolves envelope id collisions. Defaults to EnvelopeBaseWins.
	EnvelopePolicy EnvelopePolicy

	// Logger receives a warning per envelope conflict. Nil disables logging.
	Logger *slog.Logger
}

// Merger combines a base scenario with patches.
type Merger struct {
	policy EnvelopePolicy
	logger *slog.Logger
}

// NewMerger creates a Merger with the given configuration.
func NewMerger(cfg Config) *Merger {
	policy := cfg.EnvelopePolicy
	if policy == "" {
		policy = EnvelopeBaseWins
	}
	return &Merger{policy: policy, logger: cfg.Logger}
}

// Additive merges patch into base with the default policy and returns the
// merged scenario. Neither input is modified.
func Additive(base, patch *models.Scenario) *models.Scenario {
	return NewMerger(Config{}).Merge(base, patch).Scenario
}

// Merge produces the union of base and patch:
//   - durationHours is the larger of the two
//   - envelopes are keyed by envelopeId, collisions resolved by policy
//   - fleets are keyed by stewardRole; shared agents get the union of their envelopeIds
//   - events are concatenated, colliding patch ids get a ":vN" suffix,
//     and the result is stable-sorted by hour
//
// Neither input is modified; nil inputs are treated as empty scenarios.
func (m *Merger) Merge(base, patch *models.Scenario) Result {
	if base == nil {
		base = &models.Scenario{}
	}
	if patch == nil {
		patch = &models.Scenario{}
	}

	out := base.Clone()
	out.DurationHours = max(base.DurationHours, patch.DurationHours)
	for k, v := range patch.Extra {
		if _, ok := out.Extra[k]; ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}

	res := Result{Scenario: out}
	res.EnvelopeConflicts = m.mergeEnvelopes(out, patch.Envelopes)
	mergeFleets(out, patch.Fleets)
	res.RekeyedEvents = mergeEvents(out, patch.Events)

	for _, c := range res.EnvelopeConflicts {
		if m.logger != nil {
			m.logger.Warn("envelope defined differently by patch",
				"envelope_id", c.EnvelopeID, "kept", c.Kept, "policy", string(c.Policy))
		}
	}

	return res
}

func (m *Merger) mergeEnvelopes(out *models.Scenario, patch []models.Envelope) []EnvelopeConflict {
	var conflicts []EnvelopeConflict
	for _, pe := range patch {
		existing := out.EnvelopeByID(pe.EnvelopeID)
		if existing == nil {
			out.Envelopes = append(out.Envelopes, pe.Clone())
			continue
		}
		if sameEnvelope(*existing, pe) {
			continue
		}
		c := EnvelopeConflict{EnvelopeID: pe.EnvelopeID, Kept: "base", Policy: m.policy}
		if m.policy == EnvelopePatchWins {
			*existing = pe.Clone()
			c.Kept = "patch"
		}
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// sameEnvelope compares envelopes by their encoded form so that nil and
// empty lists, and extra fields, are judged the way they serialize.
func sameEnvelope(a, b models.Envelope) bool {
	ad, errA := json.Marshal(a)
	bd, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ad) == string(bd)
}

func mergeFleets(out *models.Scenario, patch []models.Fleet) {
	for _, pf := range patch {
		existing := out.FleetByRole(pf.StewardRole)
		if existing == nil {
			out.Fleets = append(out.Fleets, pf.Clone())
			continue
		}
		for _, pa := range pf.Agents {
			idx := slices.IndexFunc(existing.Agents, func(a models.Agent) bool {
				return a.AgentID == pa.AgentID
			})
			if idx < 0 {
				existing.Agents = append(existing.Agents, pa.Clone())
				continue
			}
			agent := &existing.Agents[idx]
			agent.EnvelopeIDs = unionStrings(agent.EnvelopeIDs, pa.EnvelopeIDs)
		}
	}
}

// unionStrings returns the distinct values of a followed by those of b
// that a lacks.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func mergeEvents(out *models.Scenario, patch []models.Event) []RekeyedEvent {
	seen := make(map[string]bool, len(out.Events)+len(patch))
	for _, e := range out.Events {
		seen[e.EventID] = true
	}

	var rekeyed []RekeyedEvent
	for _, pe := range patch {
		e := pe.Clone()
		if e.EventID != "" && seen[e.EventID] {
			newID := versionedID(e.EventID, seen)
			rekeyed = append(rekeyed, RekeyedEvent{OriginalID: e.EventID, NewID: newID})
			e.EventID = newID
		}
		seen[e.EventID] = true
		out.Events = append(out.Events, e)
	}

	slices.SortStableFunc(out.Events, func(a, b models.Event) int {
		return cmp.Compare(a.Hour, b.Hour)
	})
	return rekeyed
}

// versionedID returns id + ":vN" for the smallest N >= 2 not yet taken.
func versionedID(id string, taken map[string]bool) string {
	for n := 2; ; n++ {
		candidate := id + ":v" + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}
