// Democal is a demo calendar connector: reads {"tool": "...", "args": {...}} from stdin
// and answers list_events, create_event and delete_event from a JSON file.
// The file path is the first argument, else DEMOCAL_FILE, else ./democal.json.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type request struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Event is one stored calendar entry.
type Event struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

type calendar struct {
	Events []Event `json:"events"`
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	SupportsUI  bool           `json:"supports_ui,omitempty"`
}

var tools = []tool{
	{
		Name:        "list_events",
		Description: "List calendar events. Pass date (YYYY-MM-DD) to limit to one day.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			},
		},
		SupportsUI: true,
	},
	{
		Name:        "create_event",
		Description: "Create a calendar event.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":    map[string]any{"type": "string"},
				"start":    map[string]any{"type": "string", "description": "YYYY-MM-DDTHH:MM:SS"},
				"end":      map[string]any{"type": "string", "description": "YYYY-MM-DDTHH:MM:SS"},
				"location": map[string]any{"type": "string"},
			},
			"required": []string{"title", "start"},
		},
	},
	{
		Name:        "delete_event",
		Description: "Delete a calendar event by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"eventId": map[string]any{"type": "string"},
			},
			"required": []string{"eventId"},
		},
	},
}

func main() {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fail(fmt.Errorf("invalid request: %w", err))
	}
	out, err := handle(dataFile(), req)
	if err != nil {
		fail(err)
	}
	_ = json.NewEncoder(os.Stdout).Encode(out)
}

func fail(err error) {
	_ = json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
	os.Exit(1)
}

func dataFile() string {
	if len(os.Args) > 1 && os.Args[1] != "" {
		return os.Args[1]
	}
	if f := os.Getenv("DEMOCAL_FILE"); f != "" {
		return f
	}
	return "democal.json"
}

func handle(path string, req request) (any, error) {
	if req.Tool == "__describe" {
		return map[string]any{"tools": tools}, nil
	}
	cal, err := load(path)
	if err != nil {
		return nil, err
	}
	switch req.Tool {
	case "list_events":
		date := stringArg(req.Args, "date")
		var out []Event
		for _, e := range cal.Events {
			if date == "" || strings.HasPrefix(e.Start, date) {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
		if out == nil {
			out = []Event{}
		}
		return calendar{Events: out}, nil

	case "create_event":
		e := Event{
			ID:       uuid.NewString()[:8],
			Title:    stringArg(req.Args, "title"),
			Start:    stringArg(req.Args, "start"),
			End:      stringArg(req.Args, "end"),
			Location: stringArg(req.Args, "location"),
		}
		if e.Title == "" || e.Start == "" {
			return nil, errors.New("title and start are required")
		}
		cal.Events = append(cal.Events, e)
		if err := save(path, cal); err != nil {
			return nil, err
		}
		return map[string]any{"created": e}, nil

	case "delete_event":
		id := stringArg(req.Args, "eventId")
		if id == "" {
			id = stringArg(req.Args, "id")
		}
		for i, e := range cal.Events {
			if e.ID == id {
				cal.Events = append(cal.Events[:i], cal.Events[i+1:]...)
				if err := save(path, cal); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": e}, nil
			}
		}
		return nil, fmt.Errorf("event %q not found", id)
	}
	return nil, fmt.Errorf("unknown tool %q", req.Tool)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func load(path string) (calendar, error) {
	var cal calendar
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cal, nil
	}
	if err != nil {
		return cal, err
	}
	if err := json.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}

func save(path string, cal calendar) error {
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
