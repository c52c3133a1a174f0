package events

import (
	"sync"
	"time"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves into the flat
// attribute form consumed by sinks (websocket, journal, webhooks).
type Payload interface {
	Event
	Record() Record
}

// Record is the broadcastable form of an event.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EscrowID returns the escrow identifier attribute, if any.
func (r Record) EscrowID() string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes["id"]
}

// Envelope is a Record stamped with its position in the notification stream.
// Downstream sinks (journal, webhooks) receive envelopes, never raw events.
type Envelope struct {
	Sequence   uint64    `json:"sequence"`
	OccurredAt time.Time `json:"occurredAt"`
	Record
}

// ToRecord converts an event into its broadcastable form. Events that do not
// implement Payload yield a record with no attributes.
func ToRecord(evt Event) Record {
	if evt == nil {
		return Record{}
	}
	if p, ok := evt.(Payload); ok {
		return p.Record()
	}
	return Record{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Emitter broadcasts events to downstream subscribers (e.g. metrics, journal).
// Emit must not block on slow consumers and has no error path: a failing sink
// never affects the transition that produced the event.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans an event out to every non-nil emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on the
// notification side channel.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}
