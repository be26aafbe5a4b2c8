package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hattiebot/toolpilot/internal/store"
)

const jobTimeout = time.Minute

// Retention bounds the invocation log. Zero fields are skipped by store.Cleanup.
type Retention struct {
	MaxAge     time.Duration
	MaxEntries int
}

// Runner runs maintenance jobs against the store on cron schedules.
type Runner struct {
	DB        *store.DB
	Retention Retention
	Monitor   *EscalationMonitor

	cron *cron.Cron
	log  zerolog.Logger
}

func NewRunner(db *store.DB, retention Retention, log zerolog.Logger) *Runner {
	return &Runner{
		DB:        db,
		Retention: retention,
		cron:      cron.New(),
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// ScheduleCleanup registers the retention job. schedule is a standard cron
// expression or descriptor such as "@hourly".
func (r *Runner) ScheduleCleanup(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, func() { r.RunCleanup(context.Background()) }); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	return nil
}

// ScheduleEscalation registers the broken-tool check.
func (r *Runner) ScheduleEscalation(schedule string) error {
	if r.Monitor == nil {
		return fmt.Errorf("schedule escalation: no monitor configured")
	}
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := r.Monitor.CheckAndEscalate(ctx); err != nil {
			r.log.Warn().Err(err).Msg("escalation check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule escalation %q: %w", schedule, err)
	}
	return nil
}

// RunCleanup prunes the invocation log once and returns the rows removed.
func (r *Runner) RunCleanup(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	removed, err := r.DB.Cleanup(ctx, r.Retention.MaxAge, r.Retention.MaxEntries)
	if err != nil {
		r.log.Warn().Err(err).Msg("invocation log cleanup failed")
		return removed
	}
	if removed > 0 {
		r.log.Info().Int64("removed", removed).Msg("pruned invocation log")
	}
	return removed
}

// Start begins the background scheduler loop.
func (r *Runner) Start() {
	r.log.Debug().Int("jobs", len(r.cron.Entries())).Msg("scheduler started")
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Debug().Msg("scheduler stopped")
}
