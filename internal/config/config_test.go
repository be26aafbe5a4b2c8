package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hattiebot/toolpilot/internal/connectors"
)

const sampleYAML = `
model: ${TP_TEST_MODEL:-openai/gpt-4o-mini}
api_key: ${TP_TEST_KEY}
user_id: alice
max_parallel: 2
tool_timeout: 5s
calendar_markers: [calendar, events]
retention:
  max_age: 72h
  max_entries: 50
connectors:
  - id: gcal
    kind: fixture
    label: Google Calendar
    event_format: events
    tools:
      - name: list_events
        description: List events
        parameters:
          type: object
          properties:
            date: {type: string}
    responses:
      list_events:
        events:
          - title: Standup
            start: "2025-08-25T09:00:00"
  - id: outlook
    kind: process
    command: ${TP_TEST_BIN:-/usr/local/bin/democal}
    args: [--file, events.json]
`

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o600))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, filepath.Join(dir, "toolpilot.db"), cfg.DBPath)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "@hourly", cfg.Retention.Schedule)
	assert.Empty(t, cfg.Connectors)
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TP_TEST_KEY", "sk-or-test")
	writeConfig(t, dir, sampleYAML)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.Equal(t, "sk-or-test", cfg.APIKey)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, []string{"calendar", "events"}, cfg.CalendarMarkers)
	assert.Equal(t, 72*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 50, cfg.Retention.MaxEntries)
	assert.Equal(t, "@hourly", cfg.Retention.Schedule, "unset nested keys keep defaults")

	require.Len(t, cfg.Connectors, 2)
	gcal := cfg.Connectors[0]
	assert.Equal(t, connectors.KindFixture, gcal.Kind)
	assert.Equal(t, "events", gcal.EventFormat)
	require.Len(t, gcal.Tools, 1)
	assert.Equal(t, "list_events", gcal.Tools[0].LocalName)
	assert.Equal(t, "object", gcal.Tools[0].Parameters["type"])
	assert.Contains(t, gcal.Responses, "list_events")

	outlook := cfg.Connectors[1]
	assert.Equal(t, "/usr/local/bin/democal", outlook.Command)
	assert.Equal(t, []string{"--file", "events.json"}, outlook.Args)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "model: from/file\nmax_parallel: 2\ndb_path: custom.db\n")
	t.Setenv("TOOLPILOT_MODEL", "from/env")
	t.Setenv("TOOLPILOT_MAX_PARALLEL", "8")
	t.Setenv("TOOLPILOT_TOOL_TIMEOUT", "1m")
	t.Setenv("TOOLPILOT_CALENDAR_MARKERS", "cal, agenda ,")
	t.Setenv("OPENROUTER_API_KEY", "sk-env")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "from/env", cfg.Model)
	assert.Equal(t, 8, cfg.MaxParallel)
	assert.Equal(t, time.Minute, cfg.ToolTimeout)
	assert.Equal(t, []string{"cal", "agenda"}, cfg.CalendarMarkers)
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.DBPath)
}

func TestLoad_DotEnvInConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TP_TEST_DOTENV", "")
	os.Unsetenv("TP_TEST_DOTENV")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TP_TEST_DOTENV=from-dotenv\n"), 0o600))
	writeConfig(t, dir, "user_id: ${TP_TEST_DOTENV}\n")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.UserID)
}

func TestLoad_InvalidConnector(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", "connectors:\n  - id: x\n    kind: carrier-pigeon\n"},
		{"process without command", "connectors:\n  - id: x\n    kind: process\n"},
		{"duplicate id", "connectors:\n  - {id: x, kind: process, command: a}\n  - {id: x, kind: process, command: b}\n"},
		{"bad event format", "connectors:\n  - {id: x, kind: process, command: a, event_format: ical}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.body)
			_, err := Load(dir, "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(t.TempDir(), "alt.yaml")
	require.NoError(t, os.WriteFile(other, []byte("user_id: bob\n"), 0o600))

	cfg, err := Load(dir, other)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.UserID)

	_, err = Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "model: [unclosed\n")
	_, err := Load(dir, "")
	assert.ErrorContains(t, err, "parsing config YAML")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TP_SET", "value")
	t.Setenv("TP_EMPTY", "")
	tests := []struct {
		in, want string
	}{
		{"${TP_SET}", "value"},
		{"${TP_SET:-fallback}", "value"},
		{"${TP_EMPTY:-fallback}", "fallback"},
		{"${TP_EMPTY}", ""},
		{"${TP_UNSET_XYZ:-fallback}", "fallback"},
		{"${TP_UNSET_XYZ}", "${TP_UNSET_XYZ}"},
		{"prefix-${TP_SET}-suffix", "prefix-value-suffix"},
		{"$TP_SET", "$TP_SET"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandEnv(tt.in))
		})
	}
}
