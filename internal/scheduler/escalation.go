package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/store"
)

// Notify receives a tool that has just crossed the broken threshold.
type Notify func(store.ToolHealth)

// EscalationMonitor reports tools that became broken since the last check.
// A tool is reported again only after it recovers and breaks a second time.
type EscalationMonitor struct {
	DB     *store.DB
	Notify Notify

	mu       sync.Mutex
	reported map[string]bool
	log      zerolog.Logger
}

func NewEscalationMonitor(db *store.DB, notify Notify, log zerolog.Logger) *EscalationMonitor {
	return &EscalationMonitor{
		DB:       db,
		Notify:   notify,
		reported: make(map[string]bool),
		log:      log.With().Str("component", "escalation").Logger(),
	}
}

// CheckAndEscalate finds newly broken tools, logs them and calls Notify.
func (e *EscalationMonitor) CheckAndEscalate(ctx context.Context) ([]store.ToolHealth, error) {
	broken, err := e.DB.ListBrokenTools(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	current := make(map[string]bool, len(broken))
	var fresh []store.ToolHealth
	for _, t := range broken {
		current[t.Tool] = true
		if e.reported[t.Tool] {
			continue
		}
		fresh = append(fresh, t)
		e.log.Warn().
			Str("tool", t.Tool).
			Str("connector", t.ConnectorID).
			Int("failures", t.FailureCount).
			Str("last_error", t.LastError).
			Msg("tool marked broken")
		if e.Notify != nil {
			e.Notify(t)
		}
	}
	e.reported = current
	return fresh, nil
}
