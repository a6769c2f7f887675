package models

import (
	"encoding/json"
	"maps"
	"slices"
)

// EventType is the tag carried in an event's "type" field.
type EventType string

const (
	EventBoundaryInteraction EventType = "boundary_interaction"
	EventRevision            EventType = "revision"
	EventEmbedding           EventType = "embedding"
	EventRetrieval           EventType = "retrieval"
	EventDecision            EventType = "decision"
	EventSignal              EventType = "signal"
	EventAnnotation          EventType = "annotation"
)

// BoundaryKind describes how agent execution met an envelope limit.
type BoundaryKind string

const (
	BoundaryEscalated  BoundaryKind = "escalated"
	BoundaryOverridden BoundaryKind = "overridden"
	BoundaryDeferred   BoundaryKind = "deferred"
)

// Valid reports whether k is one of the known boundary kinds.
func (k BoundaryKind) Valid() bool {
	switch k {
	case BoundaryEscalated, BoundaryOverridden, BoundaryDeferred:
		return true
	}
	return false
}

// Event is one point on the scenario timeline. The kind-specific payload
// lives in Detail; when Detail is set it decides how the event is visited.
type Event struct {
	EventID   string
	Type      EventType
	Hour      float64
	ActorName string
	ActorRole string
	Detail    EventDetail

	// Extra holds fields not modeled by the header or the detail.
	Extra map[string]json.RawMessage
}

// EventDetail is the closed set of per-kind payloads. Only types in this
// package implement it.
type EventDetail interface {
	eventType() EventType
	fields() []string
	clone() EventDetail
}

// BoundaryInteraction is an agent reaching the edge of an envelope.
type BoundaryInteraction struct {
	BoundaryKind BoundaryKind `json:"boundary_kind,omitempty"`
	EnvelopeID   string       `json:"envelopeId,omitempty"`
}

// Revision is an authoritative change to an envelope.
type Revision struct {
	// ResolvesEventID points back at the boundary interaction this revision answers.
	ResolvesEventID string `json:"resolvesEventId,omitempty"`
}

// Embedding is a recorded memory of an earlier event.
type Embedding struct {
	EmbeddingID   string `json:"embeddingId,omitempty"`
	SourceEventID string `json:"sourceEventId,omitempty"`
	EmbeddingType string `json:"embeddingType,omitempty"`
}

// Retrieval is an agent recalling prior embeddings.
type Retrieval struct {
	RetrievedEmbeddings []string `json:"retrievedEmbeddings,omitempty"`
}

// Decision is a judgment taken by an agent or a steward.
type Decision struct{}

// Signal is an observed metric or external indicator.
type Signal struct{}

// Annotation is free-form commentary on the timeline.
type Annotation struct{}

// Other carries events whose type this build does not model.
type Other struct{}

func (*BoundaryInteraction) eventType() EventType { return EventBoundaryInteraction }
func (*Revision) eventType() EventType            { return EventRevision }
func (*Embedding) eventType() EventType           { return EventEmbedding }
func (*Retrieval) eventType() EventType           { return EventRetrieval }
func (*Decision) eventType() EventType            { return EventDecision }
func (*Signal) eventType() EventType              { return EventSignal }
func (*Annotation) eventType() EventType          { return EventAnnotation }
func (*Other) eventType() EventType               { return "" }

func (*BoundaryInteraction) fields() []string { return []string{"boundary_kind", "envelopeId"} }
func (*Revision) fields() []string            { return []string{"resolvesEventId"} }
func (*Embedding) fields() []string {
	return []string{"embeddingId", "sourceEventId", "embeddingType"}
}
func (*Retrieval) fields() []string  { return []string{"retrievedEmbeddings"} }
func (*Decision) fields() []string   { return nil }
func (*Signal) fields() []string     { return nil }
func (*Annotation) fields() []string { return nil }
func (*Other) fields() []string      { return nil }

func (d *BoundaryInteraction) clone() EventDetail { c := *d; return &c }
func (d *Revision) clone() EventDetail            { c := *d; return &c }
func (d *Embedding) clone() EventDetail           { c := *d; return &c }
func (d *Retrieval) clone() EventDetail {
	return &Retrieval{RetrievedEmbeddings: slices.Clone(d.RetrievedEmbeddings)}
}
func (*Decision) clone() EventDetail   { return &Decision{} }
func (*Signal) clone() EventDetail     { return &Signal{} }
func (*Annotation) clone() EventDetail { return &Annotation{} }
func (*Other) clone() EventDetail      { return &Other{} }

// newDetail returns an empty payload for the given tag.
func newDetail(t EventType) EventDetail {
	switch t {
	case EventBoundaryInteraction:
		return &BoundaryInteraction{}
	case EventRevision:
		return &Revision{}
	case EventEmbedding:
		return &Embedding{}
	case EventRetrieval:
		return &Retrieval{}
	case EventDecision:
		return &Decision{}
	case EventSignal:
		return &Signal{}
	case EventAnnotation:
		return &Annotation{}
	default:
		return &Other{}
	}
}

// NewEvent builds an event whose Type follows the detail's kind.
func NewEvent(id string, hour float64, detail EventDetail) Event {
	if detail == nil {
		detail = &Other{}
	}
	return Event{EventID: id, Type: detail.eventType(), Hour: hour, Detail: detail}
}

// EventVisitor handles each event kind. Adding a kind to this package adds
// a method here, so every visitor must decide what to do with it.
type EventVisitor interface {
	VisitBoundaryInteraction(e *Event, d *BoundaryInteraction)
	VisitRevision(e *Event, d *Revision)
	VisitEmbedding(e *Event, d *Embedding)
	VisitRetrieval(e *Event, d *Retrieval)
	VisitDecision(e *Event, d *Decision)
	VisitSignal(e *Event, d *Signal)
	VisitAnnotation(e *Event, d *Annotation)
	VisitOther(e *Event)
}

// Payload returns Detail, or an empty payload for Type when Detail is unset.
func (e *Event) Payload() EventDetail {
	if e.Detail != nil {
		return e.Detail
	}
	return newDetail(e.Type)
}

// Accept dispatches e to the visitor method for its kind.
func (e *Event) Accept(v EventVisitor) {
	switch d := e.Payload().(type) {
	case *BoundaryInteraction:
		v.VisitBoundaryInteraction(e, d)
	case *Revision:
		v.VisitRevision(e, d)
	case *Embedding:
		v.VisitEmbedding(e, d)
	case *Retrieval:
		v.VisitRetrieval(e, d)
	case *Decision:
		v.VisitDecision(e, d)
	case *Signal:
		v.VisitSignal(e, d)
	case *Annotation:
		v.VisitAnnotation(e, d)
	default:
		v.VisitOther(e)
	}
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	if e.Detail != nil {
		e.Detail = e.Detail.clone()
	}
	e.Extra = maps.Clone(e.Extra)
	return e
}

type eventHeader struct {
	EventID   string    `json:"eventId"`
	Type      EventType `json:"type"`
	Hour      float64   `json:"hour"`
	ActorName string    `json:"actorName,omitempty"`
	ActorRole string    `json:"actorRole,omitempty"`
}

var eventHeaderFields = []string{"eventId", "type", "hour", "actorName", "actorRole"}

// UnmarshalJSON decodes the header, then the payload selected by "type".
func (e *Event) UnmarshalJSON(data []byte) error {
	var h eventHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	detail := newDetail(h.Type)
	if err := json.Unmarshal(data, detail); err != nil {
		return err
	}
	extra, err := extraFields(data, append(slices.Clone(eventHeaderFields), detail.fields()...))
	if err != nil {
		return err
	}
	*e = Event{
		EventID:   h.EventID,
		Type:      h.Type,
		Hour:      h.Hour,
		ActorName: h.ActorName,
		ActorRole: h.ActorRole,
		Detail:    detail,
		Extra:     extra,
	}
	return nil
}

// MarshalJSON flattens header, payload and extra fields into one object.
func (e Event) MarshalJSON() ([]byte, error) {
	t := e.Type
	if t == "" && e.Detail != nil {
		t = e.Detail.eventType()
	}
	fields := make(map[string]json.RawMessage, len(e.Extra)+8)
	if err := mergeObject(fields, eventHeader{
		EventID:   e.EventID,
		Type:      t,
		Hour:      e.Hour,
		ActorName: e.ActorName,
		ActorRole: e.ActorRole,
	}); err != nil {
		return nil, err
	}
	if e.Detail != nil {
		if err := mergeObject(fields, e.Detail); err != nil {
			return nil, err
		}
	}
	for k, raw := range e.Extra {
		if _, ok := fields[k]; !ok {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}

// mergeObject marshals v and copies its members into dst.
func mergeObject(dst map[string]json.RawMessage, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	maps.Copy(dst, obj)
	return nil
}
