// Package aggregator merges calendar results from several connectors into one answer.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/intent"
)

// DefaultCalendarMarkers are the substrings that mark a tool as calendar-class.
var DefaultCalendarMarkers = []string{"calendar", "calendly", "gcal", "outlook"}

// IsCalendarTool reports whether fullName contains any marker, case-insensitively.
func IsCalendarTool(fullName string, markers []string) bool {
	if len(markers) == 0 {
		markers = DefaultCalendarMarkers
	}
	lower := strings.ToLower(fullName)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Registry holds parsers keyed by source service (connector ID).
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

func (r *Registry) Register(service string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[service] = p
}

func (r *Registry) Unregister(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parsers, service)
}

// Parse uses the service's registered parser, falling back to shape detection.
func (r *Registry) Parse(service string, raw json.RawMessage) ([]Event, error) {
	var p Parser
	if r != nil {
		r.mu.RLock()
		p = r.parsers[service]
		r.mu.RUnlock()
	}
	if p == nil {
		var err error
		if p, err = sniff(raw); err != nil {
			return nil, err
		}
	}
	return p.Parse(raw, service)
}

// Call is one calendar invocation outcome handed to the aggregator.
type Call struct {
	Tool    string
	Service string
	Output  json.RawMessage
	Err     string
}

// Summary is the merged view sent to the model and used for the fallback text.
type Summary struct {
	ToolsCalled     []string `json:"toolsCalled"`
	ServicesChecked int      `json:"servicesChecked"`
	Services        []string `json:"services"`
	// ServicesRead are the services with at least one result that parsed.
	ServicesRead    []string `json:"servicesRead"`
	EventCount      int      `json:"eventCount"`
	Errors          []string `json:"errors"`
	Events          []Event  `json:"events"`
}

// Summarize parses every call. Failures become entries in Errors; the batch continues.
func (r *Registry) Summarize(calls []Call) Summary {
	s := Summary{ToolsCalled: []string{}, Services: []string{}, ServicesRead: []string{}, Errors: []string{}, Events: []Event{}}
	seen, read := map[string]bool{}, map[string]bool{}
	for _, c := range calls {
		s.ToolsCalled = append(s.ToolsCalled, c.Tool)
		if !seen[c.Service] {
			seen[c.Service] = true
			s.Services = append(s.Services, c.Service)
		}
		if c.Err != "" {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", c.Service, c.Err))
			continue
		}
		events, err := r.Parse(c.Service, c.Output)
		if err != nil {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", c.Service, err))
			continue
		}
		if !read[c.Service] {
			read[c.Service] = true
			s.ServicesRead = append(s.ServicesRead, c.Service)
		}
		s.Events = append(s.Events, events...)
	}
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].StartTime < s.Events[j].StartTime })
	s.ServicesChecked = len(s.Services)
	s.EventCount = len(s.Events)
	return s
}

// Aggregator turns calendar calls into a user-facing answer.
type Aggregator struct {
	client   core.LLMClient
	registry *Registry
	log      zerolog.Logger
}

func New(client core.LLMClient, registry *Registry, log zerolog.Logger) *Aggregator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Aggregator{client: client, registry: registry, log: log.With().Str("component", "aggregator").Logger()}
}

// Registry returns the parser registry connectors register into.
func (a *Aggregator) Registry() *Registry { return a.registry }

const summarizeInstructions = `You answer calendar questions using the JSON summary of calendar lookups below.
Address what the user actually wanted. If they wanted to create, change or delete something but only
lookups ran, say so plainly and offer to do it. Mention which services were checked. List events with
their times in a friendly way and keep each event's id as "(id: <id>)" after it so later requests can
refer to it. Services missing from servicesRead returned nothing usable: say which ones failed and do
not claim they have no events. Never invent events.`

// Aggregate summarises calls for the original utterance. The reply never depends on the
// model succeeding: failures and empty replies fall back to FallbackText.
func (a *Aggregator) Aggregate(ctx context.Context, utterance string, in intent.Class, calls []Call) (string, Summary) {
	s := a.registry.Summarize(calls)
	a.log.Debug().Int("services", s.ServicesChecked).Int("events", s.EventCount).Int("errors", len(s.Errors)).Msg("aggregated calendar results")
	if a.client == nil {
		return FallbackText(s, in), s
	}

	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return FallbackText(s, in), s
	}
	msgs := []core.Message{
		{Role: core.RoleSystem, Content: summarizeInstructions},
		{Role: core.RoleUser, Content: fmt.Sprintf("User request: %s\nDetected intent: %s (%s)\n\nCalendar summary:\n%s",
			utterance, classLabel(in), in.Describe(), payload)},
	}
	reply, err := a.client.ChatCompletion(ctx, msgs)
	if err != nil {
		a.log.Warn().Err(err).Msg("calendar summary failed, using fallback")
		return FallbackText(s, in), s
	}
	if strings.TrimSpace(reply) == "" {
		return FallbackText(s, in), s
	}
	return reply, s
}

func classLabel(c intent.Class) string {
	if c == intent.None {
		return "none"
	}
	return string(c)
}

// FallbackText is the deterministic rendering of a summary. Event ids are kept so a
// follow-up such as "delete it" can find them in the conversation.
func FallbackText(s Summary, in intent.Class) string {
	var b strings.Builder
	switch {
	case s.ServicesChecked == 0:
		b.WriteString("I couldn't check any calendar.")
	case len(s.ServicesRead) == 0:
		fmt.Fprintf(&b, "I couldn't read any results from %s.", joinNames(s.Services))
	case s.EventCount == 0:
		fmt.Fprintf(&b, "I checked %s and found no events.", joinNames(s.ServicesRead))
	default:
		noun := "events"
		if s.EventCount == 1 {
			noun = "event"
		}
		fmt.Fprintf(&b, "I checked %s and found %d %s:", joinNames(s.ServicesRead), s.EventCount, noun)
		for _, ev := range s.Events {
			fmt.Fprintf(&b, "\n- %s at %s (%s", ev.Title, ev.StartTime, ev.SourceService)
			if ev.ID != "" {
				fmt.Fprintf(&b, ", id: %s", ev.ID)
			}
			b.WriteString(")")
		}
	}
	if len(s.Errors) > 0 {
		b.WriteString("\nSome lookups failed:")
		for _, e := range s.Errors {
			b.WriteString("\n- " + e)
		}
	}
	if in.Mutating() {
		fmt.Fprintf(&b, "\nI only looked things up. Tell me if you want me to %s.", in.Describe())
	}
	return b.String()
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
