// Package models defines the scenario document shared by the validator,
// the merger, the catalog and the CLI.
package models

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
)

// Scenario is a complete HDDL scenario document: a timeline of events
// acting on envelopes, executed by fleets of agents under human stewards.
type Scenario struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// DurationHours is the upper bound of the simulated timeline.
	DurationHours float64 `json:"durationHours"`

	Envelopes []Envelope `json:"envelopes"`
	Fleets    []Fleet    `json:"fleets"`
	Events    []Event    `json:"events"`

	// Extra holds top-level fields this package does not model.
	// They are written back unchanged on marshal.
	Extra map[string]json.RawMessage `json:"-"`
}

var scenarioFields = []string{"id", "title", "durationHours", "envelopes", "fleets", "events"}

// Envelope is a bounded authorization scope owned by a steward role.
type Envelope struct {
	EnvelopeID  string   `json:"envelopeId"`
	Name        string   `json:"name,omitempty"`
	OwnerRole   string   `json:"ownerRole,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	CreatedHour *float64 `json:"createdHour,omitempty"` // nil when absent
	EndHour     *float64 `json:"endHour,omitempty"`     // nil means open-ended

	Extra map[string]json.RawMessage `json:"-"`
}

var envelopeFields = []string{"envelopeId", "name", "ownerRole", "assumptions", "constraints", "createdHour", "endHour"}

// Fleet groups agents under a single human steward role.
type Fleet struct {
	StewardRole string  `json:"stewardRole"`
	Agents      []Agent `json:"agents"`

	Extra map[string]json.RawMessage `json:"-"`
}

var fleetFields = []string{"stewardRole", "agents"}

// Agent is an automated worker. EnvelopeIDs are weak references: an agent
// operates within those envelopes but does not own them.
type Agent struct {
	AgentID     string   `json:"agentId"`
	Name        string   `json:"name,omitempty"`
	EnvelopeIDs []string `json:"envelopeIds"`

	Extra map[string]json.RawMessage `json:"-"`
}

var agentFields = []string{"agentId", "name", "envelopeIds"}

// MaxStewardRoles is the number of distinct steward roles a scenario may use.
const MaxStewardRoles = 5

// FormatHour renders an hour using the shortest decimal form ("5", "-0.5").
func FormatHour(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// EnvelopeByID returns the envelope with the given id, or nil.
func (s *Scenario) EnvelopeByID(id string) *Envelope {
	for i := range s.Envelopes {
		if s.Envelopes[i].EnvelopeID == id {
			return &s.Envelopes[i]
		}
	}
	return nil
}

// FleetByRole returns the first fleet for the steward role, or nil.
func (s *Scenario) FleetByRole(role string) *Fleet {
	for i := range s.Fleets {
		if s.Fleets[i].StewardRole == role {
			return &s.Fleets[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the scenario.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	out := &Scenario{
		ID:            s.ID,
		Title:         s.Title,
		DurationHours: s.DurationHours,
		Extra:         maps.Clone(s.Extra),
	}
	if s.Envelopes != nil {
		out.Envelopes = make([]Envelope, len(s.Envelopes))
		for i := range s.Envelopes {
			out.Envelopes[i] = s.Envelopes[i].Clone()
		}
	}
	if s.Fleets != nil {
		out.Fleets = make([]Fleet, len(s.Fleets))
		for i := range s.Fleets {
			out.Fleets[i] = s.Fleets[i].Clone()
		}
	}
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i := range s.Events {
			out.Events[i] = s.Events[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the envelope.
func (e Envelope) Clone() Envelope {
	e.Assumptions = slices.Clone(e.Assumptions)
	e.Constraints = slices.Clone(e.Constraints)
	e.CreatedHour = cloneHour(e.CreatedHour)
	e.EndHour = cloneHour(e.EndHour)
	e.Extra = maps.Clone(e.Extra)
	return e
}

func cloneHour(h *float64) *float64 {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}

// Clone returns a deep copy of the fleet and its agents.
func (f Fleet) Clone() Fleet {
	if f.Agents != nil {
		agents := make([]Agent, len(f.Agents))
		for i := range f.Agents {
			agents[i] = f.Agents[i].Clone()
		}
		f.Agents = agents
	}
	f.Extra = maps.Clone(f.Extra)
	return f
}

// Clone returns a deep copy of the agent.
func (a Agent) Clone() Agent {
	a.EnvelopeIDs = slices.Clone(a.EnvelopeIDs)
	a.Extra = maps.Clone(a.Extra)
	return a
}

// UnmarshalJSON decodes a scenario, keeping unknown fields in Extra.
// null members of the envelope, fleet and event lists are dropped.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	type plain Scenario
	var p struct {
		plain
		Envelopes []json.RawMessage `json:"envelopes"`
		Fleets    []json.RawMessage `json:"fleets"`
		Events    []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var err error
	if p.plain.Envelopes, err = decodeMembers[Envelope](p.Envelopes); err != nil {
		return err
	}
	if p.plain.Fleets, err = decodeMembers[Fleet](p.Fleets); err != nil {
		return err
	}
	if p.plain.Events, err = decodeMembers[Event](p.Events); err != nil {
		return err
	}
	if p.plain.Extra, err = extraFields(data, scenarioFields); err != nil {
		return err
	}
	*s = Scenario(p.plain)
	return nil
}

// MarshalJSON encodes a scenario. Absent collections are written as [].
func (s Scenario) MarshalJSON() ([]byte, error) {
	type plain Scenario
	p := plain(s)
	if p.Envelopes == nil {
		p.Envelopes = []Envelope{}
	}
	if p.Fleets == nil {
		p.Fleets = []Fleet{}
	}
	if p.Events == nil {
		p.Events = []Event{}
	}
	return encodeWithExtra(p, s.Extra)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	type plain Envelope
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, envelopeFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*e = Envelope(p)
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return encodeWithExtra(plain(e), e.Extra)
}

func (f *Fleet) UnmarshalJSON(data []byte) error {
	type plain Fleet
	var p struct {
		plain
		Agents []json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var err error
	if p.plain.Agents, err = decodeMembers[Agent](p.Agents); err != nil {
		return err
	}
	if p.plain.Extra, err = extraFields(data, fleetFields); err != nil {
		return err
	}
	*f = Fleet(p.plain)
	return nil
}

func (f Fleet) MarshalJSON() ([]byte, error) {
	type plain Fleet
	p := plain(f)
	if p.Agents == nil {
		p.Agents = []Agent{}
	}
	return encodeWithExtra(p, f.Extra)
}

func (a *Agent) UnmarshalJSON(data []byte) error {
	type plain Agent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, agentFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*a = Agent(p)
	return nil
}

func (a Agent) MarshalJSON() ([]byte, error) {
	type plain Agent
	p := plain(a)
	if p.EnvelopeIDs == nil {
		p.EnvelopeIDs = []string{}
	}
	return encodeWithExtra(p, a.Extra)
}
