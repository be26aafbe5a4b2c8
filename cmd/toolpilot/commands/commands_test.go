package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureConfig = `
model: test/model
api_key: sk-test
base_url: %s
user_id: tester
connectors:
  - id: gcal
    kind: fixture
    label: Google Calendar
    event_format: events
    tools:
      - name: list_events
        description: List calendar events for a date
        parameters:
          type: object
          properties:
            date: {type: string}
    responses:
      list_events:
        events:
          - title: Standup
            start: "2025-08-25T09:00:00"
`

// fakeModel asks for list_events when tools are offered and answers plainly otherwise.
func fakeModel(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msg := map[string]any{"role": "assistant", "content": "You have Standup at 09:00."}
		if _, withTools := body["tools"]; withTools {
			msg = map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []map[string]any{{
					"id":   "call_1",
					"type": "function",
					"function": map[string]any{
						"name":      "list_events",
						"arguments": `{"date":"2025-08-25"}`,
					},
				}},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": msg, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := []byte(fmtConfig(baseURL))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("TOOLPILOT_MODEL", "")
	return dir
}

func fmtConfig(baseURL string) string {
	return string(bytes.Replace([]byte(fixtureConfig), []byte("%s"), []byte(baseURL), 1))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk_RunsToolAndLogsInvocation(t *testing.T) {
	srv := fakeModel(t)
	dir := setup(t, srv.URL)

	out, err := run(t, "ask", "--config-dir", dir, "what's on August 25th?")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup")

	out, err = run(t, "log", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "gcal.list_events")
	assert.Contains(t, out, `{"date":"2025-08-25"}`)
}

func TestAsk_JSON(t *testing.T) {
	srv := fakeModel(t)
	dir := setup(t, srv.URL)

	out, err := run(t, "ask", "--json", "--config-dir", dir, "what's on August 25th?")
	require.NoError(t, err)
	var res struct {
		Response   string `json:"response"`
		ToolCalled string `json:"tool_called"`
		Outcome    string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "gcal.list_events", res.ToolCalled)
	assert.Equal(t, "calendar", res.Outcome)
	assert.NotEmpty(t, res.Response)
}

func TestTools_ListsCatalog(t *testing.T) {
	dir := setup(t, "http://127.0.0.1:1")
	out, err := run(t, "tools", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "list_events")
	assert.Contains(t, out, "Google Calendar")
	assert.Contains(t, out, "unused")
}

func TestHealth_JSON(t *testing.T) {
	dir := setup(t, "http://127.0.0.1:1")
	out, err := run(t, "health", "--json", "--config-dir", dir)
	require.NoError(t, err)
	var report struct {
		Status     string `json:"status"`
		Components []struct {
			Name string `json:"name"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	names := make([]string, 0, len(report.Components))
	for _, c := range report.Components {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"catalog", "store"}, names)
}

func TestAsk_RequiresAPIKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("TOOLPILOT_API_KEY", "")
	_, err := run(t, "ask", "--config-dir", dir, "hello")
	assert.ErrorContains(t, err, "API key not set")
}
