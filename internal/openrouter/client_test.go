package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/health"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL), WithRetry(2, time.Millisecond)}, opts...)
	return NewClient("test-key", "test/model", zerolog.Nop(), opts...)
}

func TestChatCompletionWithTools_ParsesToolCalls(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"list_events","arguments":"{\"date\":\"2025-08-25\"}"}}]}}]}`))
	})

	tools := []core.ToolDefinition{{Type: "function", Function: core.FunctionSpec{Name: "list_events"}}}
	content, calls, err := c.ChatCompletionWithTools(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, tools)
	require.NoError(t, err)
	assert.Empty(t, content)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_events", calls[0].Function.Name)
	assert.JSONEq(t, `{"date":"2025-08-25"}`, calls[0].Function.Arguments)
	assert.Equal(t, "auto", got.ToolChoice)
	assert.Equal(t, "test/model", got.Model)
	assert.Equal(t, health.StatusOK, c.HealthCheck().Status)
}

func TestChatCompletion_ContentParts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"Hello "},{"type":"image","text":"x"},{"type":"text","text":"there"}]}}]}`))
	})
	out, err := c.ChatCompletion(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
}

func TestChatCompletion_RetriesServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	out, err := c.ChatCompletion(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestChatCompletion_ErrorsAreModelUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})
	_, err := c.ChatCompletion(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Equal(t, health.StatusError, c.HealthCheck().Status)
}

func TestChatCompletion_MissingKey(t *testing.T) {
	c := NewClient("", "m", zerolog.Nop())
	_, err := c.ChatCompletion(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.Equal(t, health.StatusUnknown, c.HealthCheck().Status)
}

func TestProviderFailureIsSkippedNextTime(t *testing.T) {
	dir := t.TempDir()
	var reqs []ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		reqs = append(reqs, req)
		_, _ = w.Write([]byte(`{"provider":"flaky","error":{"message":"upstream overloaded"}}`))
	}, WithConfigDir(dir))

	_, err := c.ChatCompletion(context.Background(), nil)
	require.Error(t, err)
	_, _ = c.ChatCompletion(context.Background(), nil)

	require.Len(t, reqs, 2)
	assert.Nil(t, reqs[0].Provider)
	require.NotNil(t, reqs[1].Provider)
	assert.Equal(t, []string{"flaky"}, reqs[1].Provider.Ignore)
}

func TestLoadBlockedProviders_PrunesExpired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RecordProviderFailure(dir, "m", "old", time.Now().Add(-time.Minute)))
	require.NoError(t, RecordProviderFailure(dir, "m", "live", time.Now().Add(time.Hour)))
	require.NoError(t, RecordProviderFailure(dir, "other", "x", time.Now().Add(time.Hour)))

	blocked, err := LoadBlockedProviders(dir, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, blocked)

	f, err := readProviderFailures(dir)
	require.NoError(t, err)
	assert.Len(t, f, 2)
}
