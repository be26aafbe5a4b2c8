package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hattiebot/toolpilot/internal/store"
)

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func breakTool(t *testing.T, db *store.DB, tool string) {
	t.Helper()
	for i := 0; i < store.BrokenThreshold; i++ {
		require.NoError(t, db.RecordToolFailure(context.Background(), tool, "gcal", "forbidden"))
	}
}

func TestEscalationMonitor_ReportsOncePerBreak(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	var notified []string
	monitor := NewEscalationMonitor(db, func(h store.ToolHealth) { notified = append(notified, h.Tool) }, zerolog.Nop())

	fresh, err := monitor.CheckAndEscalate(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	breakTool(t, db, "gcal.delete_event")
	fresh, err = monitor.CheckAndEscalate(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "gcal.delete_event", fresh[0].Tool)
	assert.Equal(t, "forbidden", fresh[0].LastError)

	fresh, err = monitor.CheckAndEscalate(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh, "already reported")

	require.NoError(t, db.RecordToolSuccess(ctx, "gcal.delete_event", "gcal"))
	_, err = monitor.CheckAndEscalate(ctx)
	require.NoError(t, err)

	breakTool(t, db, "gcal.delete_event")
	fresh, err = monitor.CheckAndEscalate(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 1, "reported again after recovering")
	assert.Equal(t, []string{"gcal.delete_event", "gcal.delete_event"}, notified)
}

func TestRunner_RunCleanup(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	now := time.Now()
	for i, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Minute} {
		require.NoError(t, db.InsertInvocation(ctx, store.Invocation{
			ID: string(rune('a' + i)), Tool: "gcal.list_events", ConnectorID: "gcal", OK: true,
			StartedAt: now.Add(-age),
		}))
	}

	r := NewRunner(db, Retention{MaxAge: 24 * time.Hour}, zerolog.Nop())
	assert.Equal(t, int64(2), r.RunCleanup(ctx))
	n, err := db.CountInvocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunner_Schedules(t *testing.T) {
	db := openDB(t)
	r := NewRunner(db, Retention{MaxEntries: 10}, zerolog.Nop())
	require.NoError(t, r.ScheduleCleanup("@hourly"))
	assert.Error(t, r.ScheduleCleanup("not a schedule"))
	assert.Error(t, r.ScheduleEscalation("@every 1m"), "no monitor")

	r.Monitor = NewEscalationMonitor(db, nil, zerolog.Nop())
	require.NoError(t, r.ScheduleEscalation("@every 1m"))

	r.Start()
	r.Stop()
}
