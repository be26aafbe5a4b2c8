package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal.json")
	data, err := json.Marshal(calendar{Events: []Event{
		{ID: "evt-2", Title: "Lunch", Start: "2025-08-25T12:00:00"},
		{ID: "evt-1", Title: "Standup", Start: "2025-08-25T09:00:00"},
		{ID: "evt-3", Title: "Review", Start: "2025-08-26T15:00:00"},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHandle_Describe(t *testing.T) {
	out, err := handle("unused.json", request{Tool: "__describe"})
	require.NoError(t, err)
	raw, _ := json.Marshal(out)
	assert.Contains(t, string(raw), `"name":"delete_event"`)
}

func TestHandle_ListByDate(t *testing.T) {
	path := seed(t)
	out, err := handle(path, request{Tool: "list_events", Args: map[string]any{"date": "2025-08-25"}})
	require.NoError(t, err)
	cal := out.(calendar)
	require.Len(t, cal.Events, 2)
	assert.Equal(t, "Standup", cal.Events[0].Title)

	out, err = handle(path, request{Tool: "list_events", Args: map[string]any{"date": "2030-01-01"}})
	require.NoError(t, err)
	raw, _ := json.Marshal(out)
	assert.JSONEq(t, `{"events":[]}`, string(raw))
}

func TestHandle_CreateAndDelete(t *testing.T) {
	path := seed(t)
	out, err := handle(path, request{Tool: "create_event", Args: map[string]any{"title": "Dentist", "start": "2025-08-27T15:00:00"}})
	require.NoError(t, err)
	created := out.(map[string]any)["created"].(Event)
	assert.Len(t, created.ID, 8)

	cal, err := load(path)
	require.NoError(t, err)
	assert.Len(t, cal.Events, 4)

	_, err = handle(path, request{Tool: "delete_event", Args: map[string]any{"eventId": created.ID}})
	require.NoError(t, err)
	cal, _ = load(path)
	assert.Len(t, cal.Events, 3)

	_, err = handle(path, request{Tool: "delete_event", Args: map[string]any{"eventId": "nope"}})
	assert.ErrorContains(t, err, "not found")
}

func TestHandle_Errors(t *testing.T) {
	path := seed(t)
	_, err := handle(path, request{Tool: "create_event", Args: map[string]any{"title": "x"}})
	assert.Error(t, err)
	_, err = handle(path, request{Tool: "launch_rocket"})
	assert.ErrorContains(t, err, "unknown tool")
}
