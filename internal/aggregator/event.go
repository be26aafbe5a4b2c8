package aggregator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hattiebot/toolpilot/internal/core"
)

const (
	untitledEvent = "Untitled event"
	unknownTime   = "Unknown time"
)

// Event is a calendar entry normalised across providers.
type Event struct {
	Title         string   `json:"title"`
	StartTime     string   `json:"startTime"`
	EndTime       string   `json:"endTime,omitempty"`
	Location      string   `json:"location,omitempty"`
	ID            string   `json:"id,omitempty"`
	SourceService string   `json:"sourceService"`
	Attendees     []string `json:"attendees,omitempty"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// Parser turns one connector's raw result into events.
type Parser interface {
	Parse(raw json.RawMessage, source string) ([]Event, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(raw json.RawMessage, source string) ([]Event, error)

func (f ParserFunc) Parse(raw json.RawMessage, source string) ([]Event, error) { return f(raw, source) }

// Built-in parsers for the three result shapes seen from calendar connectors. Each
// fails with core.ErrParseFailed when its list is missing or null.
var (
	// EventsParser reads {"events":[...]}.
	EventsParser Parser = ParserFunc(func(raw json.RawMessage, source string) ([]Event, error) {
		var body struct {
			Events *[]map[string]any `json:"events"`
		}
		if err := decodeBody(raw, &body); err != nil {
			return nil, err
		}
		if body.Events == nil {
			return nil, missingList(raw, "events")
		}
		return normalizeAll(*body.Events, source), nil
	})

	// OutputItemsParser reads {"output":{"items":[...]}}.
	OutputItemsParser Parser = ParserFunc(func(raw json.RawMessage, source string) ([]Event, error) {
		var body struct {
			Output *struct {
				Items *[]map[string]any `json:"items"`
			} `json:"output"`
		}
		if err := decodeBody(raw, &body); err != nil {
			return nil, err
		}
		if body.Output == nil || body.Output.Items == nil {
			return nil, missingList(raw, "output.items")
		}
		return normalizeAll(*body.Output.Items, source), nil
	})

	// CollectionParser reads {"collection":[...]}.
	CollectionParser Parser = ParserFunc(func(raw json.RawMessage, source string) ([]Event, error) {
		var body struct {
			Collection *[]map[string]any `json:"collection"`
		}
		if err := decodeBody(raw, &body); err != nil {
			return nil, err
		}
		if body.Collection == nil {
			return nil, missingList(raw, "collection")
		}
		return normalizeAll(*body.Collection, source), nil
	})
)

func decodeBody(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrParseFailed, err)
	}
	return nil
}

// missingList explains why the expected list is absent. Output cut by the connector's
// size limit is reported as truncated.
func missingList(raw json.RawMessage, key string) error {
	var cut struct {
		Truncated  bool `json:"truncated"`
		TotalRunes int  `json:"total_runes"`
	}
	if json.Unmarshal(raw, &cut) == nil && cut.Truncated {
		return fmt.Errorf("%w: output truncated at %d runes", core.ErrParseFailed, cut.TotalRunes)
	}
	return fmt.Errorf("%w: no %q list in result", core.ErrParseFailed, key)
}

// ParserByFormat maps config names to built-in parsers.
func ParserByFormat(format string) (Parser, bool) {
	switch strings.ToLower(format) {
	case "events":
		return EventsParser, true
	case "output_items", "output.items":
		return OutputItemsParser, true
	case "collection":
		return CollectionParser, true
	}
	return nil, false
}

// sniff picks a built-in parser from the top-level keys of raw.
func sniff(raw json.RawMessage) (Parser, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: result is not a JSON object: %v", core.ErrParseFailed, err)
	}
	if _, ok := top["events"]; ok {
		return EventsParser, nil
	}
	if _, ok := top["collection"]; ok {
		return CollectionParser, nil
	}
	if out, ok := top["output"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(out, &inner) == nil {
			if _, ok := inner["items"]; ok {
				return OutputItemsParser, nil
			}
		}
	}
	if _, ok := top["truncated"]; ok {
		return nil, missingList(raw, "")
	}
	return nil, fmt.Errorf("%w: unrecognised calendar result shape", core.ErrParseFailed)
}

func normalizeAll(items []map[string]any, source string) []Event {
	out := make([]Event, 0, len(items))
	for _, item := range items {
		out = append(out, normalize(item, source))
	}
	return out
}

func normalize(m map[string]any, source string) Event {
	ev := Event{
		Title:         firstString(m, "title", "summary", "name", "subject"),
		StartTime:     timeField(m, "start", "start_time", "startTime", "start_date"),
		EndTime:       timeField(m, "end", "end_time", "endTime", "end_date"),
		Location:      locationField(m),
		ID:            firstString(m, "id", "event_id", "eventId", "uid", "uri"),
		SourceService: source,
		Attendees:     attendees(m),
		Description:   firstString(m, "description", "body", "notes"),
		Status:        firstString(m, "status"),
	}
	if strings.TrimSpace(ev.Title) == "" {
		ev.Title = untitledEvent
	}
	if strings.TrimSpace(ev.StartTime) == "" {
		ev.StartTime = unknownTime
	}
	return ev
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// timeField accepts a plain string or a Google-style {"dateTime":..} / {"date":..} object.
func timeField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s := firstString(v, "dateTime", "date_time", "date"); s != "" {
				return s
			}
		}
	}
	return ""
}

func locationField(m map[string]any) string {
	switch v := m["location"].(type) {
	case string:
		return v
	case map[string]any:
		return firstString(v, "location", "join_url", "address", "displayName")
	}
	return ""
}

func attendees(m map[string]any) []string {
	var raw []any
	for _, k := range []string{"attendees", "invitees", "participants"} {
		if list, ok := m[k].([]any); ok {
			raw = list
			break
		}
	}
	var out []string
	for _, a := range raw {
		switch v := a.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if s := firstString(v, "email", "name", "displayName"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
