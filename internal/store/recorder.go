package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/catalog"
)

const recordTimeout = 5 * time.Second

// Recorder writes catalog invocation events to the invocation log and tool health.
type Recorder struct {
	db     *DB
	userID string
	log    zerolog.Logger
}

func NewRecorder(db *DB, userID string, log zerolog.Logger) *Recorder {
	return &Recorder{db: db, userID: userID, log: log.With().Str("component", "recorder").Logger()}
}

// Attach subscribes the recorder to cat and returns the unsubscribe function.
func (r *Recorder) Attach(cat *catalog.Catalog) func() {
	return cat.Subscribe(r.Handle)
}

// Handle records EventInvoked and ignores other kinds. Storage errors are logged, never
// returned, so a broken log cannot fail an invocation.
func (r *Recorder) Handle(ev catalog.Event) {
	if ev.Kind != catalog.EventInvoked {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	inv := Invocation{
		ID:          ev.InvocationID,
		Tool:        ev.FullName,
		ConnectorID: ev.ConnectorID,
		UserID:      r.userID,
		Args:        ev.Args,
		OK:          ev.Err == nil,
		Duration:    ev.Duration,
		StartedAt:   ev.At,
	}
	if ev.Err != nil {
		inv.Error = ev.Err.Error()
	}
	if err := r.db.InsertInvocation(ctx, inv); err != nil {
		r.log.Warn().Err(err).Str("tool", ev.FullName).Msg("could not log invocation")
	}

	var err error
	if ev.Err == nil {
		err = r.db.RecordToolSuccess(ctx, ev.FullName, ev.ConnectorID)
	} else {
		err = r.db.RecordToolFailure(ctx, ev.FullName, ev.ConnectorID, inv.Error)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("tool", ev.FullName).Msg("could not update tool health")
	}
}
