// Package connectors starts and stops the configured connectors and keeps the catalog
// and the calendar parser registry in step with them.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/aggregator"
	"github.com/hattiebot/toolpilot/internal/catalog"
	"github.com/hattiebot/toolpilot/internal/core"
)

// Kind selects the connector implementation.
type Kind string

const (
	KindProcess Kind = "process"
	KindFixture Kind = "fixture"
)

// Spec is one configured connector.
type Spec struct {
	ID       string            `yaml:"id"`
	Kind     Kind              `yaml:"kind"`
	Label    string            `yaml:"label"`
	Disabled bool              `yaml:"disabled"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	Dir      string            `yaml:"dir"`
	// EventFormat names the calendar result shape: events, output_items or collection.
	EventFormat string               `yaml:"event_format"`
	Tools       []catalog.Descriptor `yaml:"tools"`
	Responses   map[string]any       `yaml:"responses"`
}

// Validate checks the fields the kind needs.
func (s Spec) Validate() error {
	if s.ID == "" {
		return errors.New("connector id is required")
	}
	switch s.Kind {
	case KindProcess:
		if s.Command == "" {
			return fmt.Errorf("connector %s: command is required for process connectors", s.ID)
		}
	case KindFixture:
		if len(s.Tools) == 0 {
			return fmt.Errorf("connector %s: fixture connectors need tools", s.ID)
		}
	default:
		return fmt.Errorf("connector %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.EventFormat != "" {
		if _, ok := aggregator.ParserByFormat(s.EventFormat); !ok {
			return fmt.Errorf("connector %s: unknown event_format %q", s.ID, s.EventFormat)
		}
	}
	return nil
}

// Manager owns the running connectors.
type Manager struct {
	catalog  *catalog.Catalog
	parsers  *aggregator.Registry
	maxRunes int
	log      zerolog.Logger

	mu      sync.Mutex
	running map[string]Spec
}

func NewManager(cat *catalog.Catalog, parsers *aggregator.Registry, maxRunes int, log zerolog.Logger) *Manager {
	return &Manager{
		catalog:  cat,
		parsers:  parsers,
		maxRunes: maxRunes,
		log:      log.With().Str("component", "connectors").Logger(),
		running:  make(map[string]Spec),
	}
}

// Start builds the connector, publishes its tools and registers its event parser.
// Starting a running connector replaces it.
func (m *Manager) Start(ctx context.Context, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	conn, descriptors, err := build(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConnectorUnavailable, err)
	}
	if len(descriptors) == 0 {
		return fmt.Errorf("%w: connector %s exposes no tools", core.ErrConnectorUnavailable, spec.ID)
	}
	for i := range descriptors {
		if descriptors[i].Title == "" && spec.Label != "" {
			descriptors[i].Title = spec.Label + ": " + descriptors[i].LocalName
		}
	}

	if m.parsers != nil {
		if p, ok := aggregator.ParserByFormat(spec.EventFormat); ok {
			m.parsers.Register(spec.ID, p)
		} else {
			m.parsers.Unregister(spec.ID)
		}
	}
	m.catalog.ConnectorStarted(Truncating{Connector: conn, MaxRunes: m.maxRunes}, descriptors)

	m.mu.Lock()
	m.running[spec.ID] = spec
	m.mu.Unlock()
	m.log.Info().Str("connector", spec.ID).Str("kind", string(spec.Kind)).Int("tools", len(descriptors)).Msg("connector started")
	return nil
}

func build(ctx context.Context, spec Spec) (core.Connector, []catalog.Descriptor, error) {
	switch spec.Kind {
	case KindFixture:
		conn, err := NewFixtureConnector(spec.ID, spec.Responses)
		if err != nil {
			return nil, nil, err
		}
		return conn, spec.Tools, nil
	case KindProcess:
		conn := NewProcessConnector(spec)
		if len(spec.Tools) > 0 {
			return conn, spec.Tools, nil
		}
		descriptors, err := conn.Describe(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, descriptors, nil
	}
	return nil, nil, fmt.Errorf("unknown kind %q", spec.Kind)
}

// StartAll starts every enabled spec. One failing connector does not stop the others.
func (m *Manager) StartAll(ctx context.Context, specs []Spec) error {
	var errs []error
	for _, s := range specs {
		if s.Disabled {
			continue
		}
		if err := m.Start(ctx, s); err != nil {
			m.log.Warn().Err(err).Str("connector", s.ID).Msg("connector failed to start")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop removes the connector's tools and parser.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	_, ok := m.running[id]
	delete(m.running, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.catalog.ConnectorStopped(id)
	if m.parsers != nil {
		m.parsers.Unregister(id)
	}
}

func (m *Manager) StopAll() {
	for _, id := range m.Running() {
		m.Stop(id)
	}
}

// Running returns the ids of started connectors, sorted.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Label returns the configured display label for a connector, or its id.
func (m *Manager) Label(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.running[id]; ok && s.Label != "" {
		return s.Label
	}
	return id
}
