package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hattiebot/toolpilot/internal/core"
	"github.com/hattiebot/toolpilot/internal/health"
)

type mockConnector struct {
	id     string
	mu     sync.Mutex
	calls  []string
	result json.RawMessage
	err    error
	panics bool
}

func (m *mockConnector) ID() string { return m.id }

func (m *mockConnector) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, tool)
	m.mu.Unlock()
	if m.panics {
		panic("boom")
	}
	return m.result, m.err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestCatalog() *Catalog {
	c := New(zerolog.Nop())
	c.now = func() time.Time { return time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestRegister_UpsertReplacesSameFullName(t *testing.T) {
	c := newTestCatalog()
	rec := &recorder{}
	c.Subscribe(rec.add)

	c.Register("gcal", "list_events", Descriptor{Description: "old"})
	c.Register("gcal", "list_events", Descriptor{Description: "new", UICapabilities: []string{"table", "table", ""}})

	all := c.List()
	require.Len(t, all, 1)
	assert.Equal(t, "gcal.list_events", all[0].FullName())
	assert.Equal(t, "new", all[0].Description)
	assert.Equal(t, []string{"table"}, all[0].UICapabilities)
	assert.False(t, all[0].RegisteredAt.IsZero())
	assert.Equal(t, []EventKind{EventRegistered, EventRegistered}, rec.kinds())
}

func TestRemoveAll_EmitsPerEntryAndSummary(t *testing.T) {
	c := newTestCatalog()
	c.Register("gcal", "list_events", Descriptor{})
	c.Register("gcal", "create_event", Descriptor{})
	c.Register("gmail", "send", Descriptor{})

	rec := &recorder{}
	c.Subscribe(rec.add)

	n := c.RemoveAll("gcal")
	assert.Equal(t, 2, n)
	assert.Equal(t, []EventKind{EventRemoved, EventRemoved, EventRemovalSummary}, rec.kinds())
	assert.Equal(t, 2, rec.events[2].Count)

	_, ok := c.Get("gmail.send")
	assert.True(t, ok)
	_, ok = c.Get("gcal.list_events")
	assert.False(t, ok)
}

func TestUnsubscribe(t *testing.T) {
	c := newTestCatalog()
	rec := &recorder{}
	unsubscribe := c.Subscribe(rec.add)
	c.Register("gcal", "a", Descriptor{})
	unsubscribe()
	c.Register("gcal", "b", Descriptor{})
	assert.Len(t, rec.kinds(), 1)
}

func TestConnectorStarted_ReplacesToolSet(t *testing.T) {
	c := newTestCatalog()
	conn := &mockConnector{id: "gcal"}
	c.ConnectorStarted(conn, []Descriptor{{LocalName: "list_events"}, {LocalName: "old_tool"}})
	c.ConnectorStarted(conn, []Descriptor{{LocalName: "list_events"}, {LocalName: "create_event"}})

	names := []string{}
	for _, d := range c.List() {
		names = append(names, d.FullName())
	}
	assert.Equal(t, []string{"gcal.create_event", "gcal.list_events"}, names)
	assert.True(t, c.Running("gcal"))
}

func TestConnectorStopped_RemovesEverything(t *testing.T) {
	c := newTestCatalog()
	conn := &mockConnector{id: "gcal"}
	c.ConnectorStarted(conn, []Descriptor{{LocalName: "list_events"}})
	c.ConnectorStopped("gcal")

	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Running("gcal"))
}

func TestInvoke_Errors(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog()

	_, err := c.Invoke(ctx, "gcal.missing", nil)
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	c.Register("gcal", "list_events", Descriptor{})
	_, err = c.Invoke(ctx, "gcal.list_events", nil)
	assert.ErrorIs(t, err, core.ErrConnectorUnavailable)

	upstream := errors.New("HTTP 503")
	c.ConnectorStarted(&mockConnector{id: "gcal", err: upstream}, []Descriptor{{LocalName: "list_events"}})
	_, err = c.Invoke(ctx, "gcal.list_events", nil)
	assert.ErrorIs(t, err, core.ErrInvocationFailed)
	assert.ErrorIs(t, err, upstream)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "gcal.list_events", invErr.Tool)
}

func TestInvoke_SuccessPublishesEvent(t *testing.T) {
	c := newTestCatalog()
	conn := &mockConnector{id: "gcal", result: json.RawMessage(`{"events":[]}`)}
	c.ConnectorStarted(conn, []Descriptor{{LocalName: "list_events"}})

	rec := &recorder{}
	c.Subscribe(rec.add)

	out, err := c.Invoke(context.Background(), "gcal.list_events", map[string]any{"date": "2025-08-25"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"events":[]}`, string(out))
	assert.Equal(t, []string{"list_events"}, conn.calls)

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, EventInvoked, ev.Kind)
	assert.Equal(t, "gcal", ev.ConnectorID)
	assert.NotEmpty(t, ev.InvocationID)
	assert.NoError(t, ev.Err)
	assert.Equal(t, "2025-08-25", ev.Args["date"])
}

func TestInvoke_RecoversConnectorPanic(t *testing.T) {
	c := newTestCatalog()
	c.ConnectorStarted(&mockConnector{id: "notes", panics: true}, []Descriptor{{LocalName: "search"}})
	_, err := c.Invoke(context.Background(), "notes.search", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvocationFailed)
	assert.Contains(t, err.Error(), "connector panic")
}

func TestSnapshotDoesNotAliasCatalog(t *testing.T) {
	c := newTestCatalog()
	c.Register("gcal", "list_events", Descriptor{Parameters: map[string]any{"type": "object"}})
	snap := c.List()
	snap[0].Parameters["type"] = "mutated"

	d, ok := c.Get("gcal.list_events")
	require.True(t, ok)
	assert.Equal(t, "object", d.Parameters["type"])
}

func TestConcurrentReadersSeeWholeToolSets(t *testing.T) {
	c := newTestCatalog()
	conn := &mockConnector{id: "gcal"}
	setA := []Descriptor{{LocalName: "a1"}, {LocalName: "a2"}, {LocalName: "a3"}}
	setB := []Descriptor{{LocalName: "b1"}, {LocalName: "b2"}, {LocalName: "b3"}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				c.ConnectorStarted(conn, setA)
			} else {
				c.ConnectorStarted(conn, setB)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		n := len(c.List())
		if n != 0 && n != 3 {
			t.Fatalf("reader observed partial tool set of size %d", n)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	c := newTestCatalog()
	assert.Equal(t, health.StatusDegraded, c.HealthCheck().Status)
	c.Register("gcal", "list_events", Descriptor{})
	assert.Equal(t, health.StatusOK, c.HealthCheck().Status)
}

func TestInvoke_UsesCallerInvocationID(t *testing.T) {
	c := newTestCatalog()
	c.ConnectorStarted(&mockConnector{id: "gcal"}, []Descriptor{{LocalName: "list_events"}})
	rec := &recorder{}
	c.Subscribe(rec.add)

	ctx := WithInvocationID(context.Background(), "inv-1")
	_, err := c.Invoke(ctx, "gcal.list_events", nil)
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "inv-1", rec.events[0].InvocationID)
}
