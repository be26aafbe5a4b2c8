package catalog

import (
	"time"
)

// EventKind identifies what happened in the catalog.
type EventKind string

const (
	EventRegistered     EventKind = "registered"
	EventRemoved        EventKind = "removed"
	EventRemovalSummary EventKind = "removal_summary"
	EventInvoked        EventKind = "invoked"
)

// Event is delivered to subscribers after the catalog state changed or an invocation finished.
type Event struct {
	Kind        EventKind
	ConnectorID string
	FullName    string
	// Count is the number of removed entries (EventRemovalSummary only).
	Count int
	// Invocation fields (EventInvoked only).
	InvocationID string
	Args         map[string]any
	Duration     time.Duration
	Err          error
	At           time.Time
}

// Subscriber receives catalog events. It is called synchronously outside the catalog
// lock, so it must not block for long.
type Subscriber func(Event)
