// Package catalog holds the descriptors of every operation exposed by the running
// connectors and routes invocations to the owning connector.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/health"
)

// InvocationError wraps an error returned by a connector.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, core.ErrInvocationFailed) match any connector-level failure.
func (e *InvocationError) Is(target error) bool {
	return target == core.ErrInvocationFailed
}

// Catalog is safe for concurrent use. Connector lifecycle updates swap a connector's
// whole tool set under one write lock, so readers never see a partial set.
type Catalog struct {
	mu         sync.RWMutex
	tools      map[string]Descriptor
	connectors map[string]core.Connector

	subMu  sync.RWMutex
	subs   map[int]Subscriber
	nextID int

	log zerolog.Logger
	now func() time.Time
}

// New creates an empty catalog.
func New(log zerolog.Logger) *Catalog {
	return &Catalog{
		tools:      make(map[string]Descriptor),
		connectors: make(map[string]core.Connector),
		subs:       make(map[int]Subscriber),
		log:        log.With().Str("component", "catalog").Logger(),
		now:        time.Now,
	}
}

// Subscribe registers fn for every catalog event and returns a function that removes it.
func (c *Catalog) Subscribe(fn Subscriber) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Catalog) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.subMu.RLock()
	subs := make([]Subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()
	for _, ev := range events {
		for _, s := range subs {
			s(ev)
		}
	}
}

// Register upserts a descriptor under connectorID.localName. An existing entry with the
// same full name is replaced.
func (c *Catalog) Register(connectorID, localName string, d Descriptor) {
	d.ConnectorID = connectorID
	d.LocalName = localName
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = c.now()
	}
	d = d.clone()
	name := d.FullName()

	c.mu.Lock()
	c.tools[name] = d
	c.mu.Unlock()

	c.log.Debug().Str("tool", name).Msg("tool registered")
	c.publish(Event{Kind: EventRegistered, ConnectorID: connectorID, FullName: name, At: d.RegisteredAt})
}

// RemoveAll drops every descriptor owned by connectorID and returns how many were removed.
func (c *Catalog) RemoveAll(connectorID string) int {
	c.mu.Lock()
	removed := c.removeLocked(connectorID)
	c.mu.Unlock()

	c.publish(c.removalEvents(connectorID, removed)...)
	return len(removed)
}

func (c *Catalog) removeLocked(connectorID string) []string {
	var removed []string
	for name, d := range c.tools {
		if d.ConnectorID == connectorID {
			delete(c.tools, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

func (c *Catalog) removalEvents(connectorID string, removed []string) []Event {
	at := c.now()
	events := make([]Event, 0, len(removed)+1)
	for _, name := range removed {
		events = append(events, Event{Kind: EventRemoved, ConnectorID: connectorID, FullName: name, At: at})
	}
	events = append(events, Event{Kind: EventRemovalSummary, ConnectorID: connectorID, Count: len(removed), At: at})
	if len(removed) > 0 {
		c.log.Info().Str("connector", connectorID).Int("count", len(removed)).Msg("tools removed")
	}
	return events
}

// ConnectorStarted marks conn as running and replaces its tool set with descriptors.
func (c *Catalog) ConnectorStarted(conn core.Connector, descriptors []Descriptor) {
	id := conn.ID()
	at := c.now()

	c.mu.Lock()
	stale := make(map[string]bool)
	for name, d := range c.tools {
		if d.ConnectorID == id {
			stale[name] = true
			delete(c.tools, name)
		}
	}
	var events []Event
	for _, d := range descriptors {
		d.ConnectorID = id
		if d.RegisteredAt.IsZero() {
			d.RegisteredAt = at
		}
		d = d.clone()
		name := d.FullName()
		c.tools[name] = d
		delete(stale, name)
		events = append(events, Event{Kind: EventRegistered, ConnectorID: id, FullName: name, At: at})
	}
	c.connectors[id] = conn
	c.mu.Unlock()

	for name := range stale {
		events = append(events, Event{Kind: EventRemoved, ConnectorID: id, FullName: name, At: at})
	}
	c.log.Info().Str("connector", id).Int("tools", len(descriptors)).Msg("connector started")
	c.publish(events...)
}

// ConnectorStopped marks the connector as stopped and removes all of its tools.
func (c *Catalog) ConnectorStopped(connectorID string) {
	c.mu.Lock()
	delete(c.connectors, connectorID)
	removed := c.removeLocked(connectorID)
	c.mu.Unlock()

	c.log.Info().Str("connector", connectorID).Msg("connector stopped")
	c.publish(c.removalEvents(connectorID, removed)...)
}

// Running reports whether the connector is currently started.
func (c *Catalog) Running(connectorID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.connectors[connectorID]
	return ok
}

// List returns a snapshot of all descriptors sorted by full name.
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	out := make([]Descriptor, 0, len(c.tools))
	for _, d := range c.tools {
		out = append(out, d.clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// Get returns the descriptor registered under fullName.
func (c *Catalog) Get(fullName string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[fullName]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Len returns the number of registered descriptors.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// Invoke resolves the owning connector of fullName and calls it. Every attempt,
// including unknown names, is published as an EventInvoked.
func (c *Catalog) Invoke(ctx context.Context, fullName string, args map[string]any) (json.RawMessage, error) {
	start := c.now()
	invocationID, ok := InvocationID(ctx)
	if !ok {
		invocationID = uuid.NewString()
	}

	c.mu.RLock()
	d, ok := c.tools[fullName]
	var conn core.Connector
	if ok {
		conn = c.connectors[d.ConnectorID]
	}
	c.mu.RUnlock()

	connectorID := d.ConnectorID
	var out json.RawMessage
	var err error
	switch {
	case !ok:
		if i := strings.Index(fullName, "."); i > 0 {
			connectorID = fullName[:i]
		}
		err = fmt.Errorf("%w: %s", core.ErrToolNotFound, fullName)
	case conn == nil:
		err = fmt.Errorf("%w: %s", core.ErrConnectorUnavailable, d.ConnectorID)
	default:
		out, err = safeInvoke(ctx, conn, d.LocalName, args)
		if err != nil {
			err = &InvocationError{Tool: fullName, Err: err}
		}
	}

	elapsed := c.now().Sub(start)
	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("tool", fullName).Str("invocation_id", invocationID).Dur("duration", elapsed).Msg("tool invoked")

	c.publish(Event{
		Kind:         EventInvoked,
		ConnectorID:  connectorID,
		FullName:     fullName,
		InvocationID: invocationID,
		Args:         args,
		Duration:     elapsed,
		Err:          err,
		At:           start,
	})
	return out, err
}

// safeInvoke turns a connector panic into an error so one bad connector cannot take
// down the request.
func safeInvoke(ctx context.Context, conn core.Connector, tool string, args map[string]any) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panic: %v", r)
		}
	}()
	return conn.Invoke(ctx, tool, args)
}

// HealthCheck reports degraded while no tools are registered.
func (c *Catalog) HealthCheck() health.ComponentHealth {
	c.mu.RLock()
	tools, running := len(c.tools), len(c.connectors)
	c.mu.RUnlock()

	h := health.ComponentHealth{Name: "catalog", Status: health.StatusOK, LastOK: c.now()}
	if tools == 0 {
		h.Status = health.StatusDegraded
		h.Message = "no tools registered"
		return h
	}
	h.Message = fmt.Sprintf("%d tools from %d connectors", tools, running)
	return h
}
