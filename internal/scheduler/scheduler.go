package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CycleFunc runs one strategy cycle for the given decision timestamp
type CycleFunc func(at time.Time) error

// Runner fires strategy cycles on a cron schedule.
//
// The runner only drives timing; the decision pipeline itself is
// synchronous and owned by the cycle function.
type Runner struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new cycle runner
func New(log zerolog.Logger) *Runner {
	return &Runner{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the runner
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info().Msg("Cycle runner started")
}

// Stop stops the runner and waits for a running cycle to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info().Msg("Cycle runner stopped")
}

// AddCycle registers a strategy cycle on a cron schedule.
// Schedule examples:
//   - "0 0 * * * *"   - Every hour
//   - "@every 4h"     - Every four hours
//   - "@daily"        - Once a day
func (r *Runner) AddCycle(schedule, name string, fn CycleFunc) error {
	_, err := r.cron.AddFunc(schedule, func() {
		at := time.Now().UTC()
		r.log.Debug().Str("cycle", name).Time("at", at).Msg("Running strategy cycle")

		if err := fn(at); err != nil {
			r.log.Error().
				Err(err).
				Str("cycle", name).
				Msg("Strategy cycle failed")
		} else {
			r.log.Debug().Str("cycle", name).Msg("Strategy cycle completed")
		}
	})

	if err != nil {
		return err
	}

	r.log.Info().
		Str("schedule", schedule).
		Str("cycle", name).
		Msg("Strategy cycle registered")

	return nil
}

// RunNow executes a cycle immediately, outside the schedule
func (r *Runner) RunNow(name string, fn CycleFunc) error {
	at := time.Now().UTC()
	r.log.Info().Str("cycle", name).Time("at", at).Msg("Running strategy cycle immediately")
	return fn(at)
}
