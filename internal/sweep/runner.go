// Package sweep runs the daily pass that records still-unresolved chores
// into history.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper is the single lifecycle-manager operation the runner drives.
// Implemented by chores.Manager.
type Sweeper interface {
	SweepIncomplete(now time.Time) (int, error)
}

// Runner fires the sweep once per day at a configured local HH:MM. The
// sweep itself is idempotent per day, so an extra run (restart, manual
// trigger) is harmless.
type Runner struct {
	sweeper Sweeper
	hour    int
	minute  int
	logger  *slog.Logger
}

// NewRunner creates a Runner firing daily at the given "HH:MM" time.
func NewRunner(sweeper Sweeper, at string) (*Runner, error) {
	tick, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep time %q: %w", at, err)
	}
	return &Runner{
		sweeper: sweeper,
		hour:    tick.Hour(),
		minute:  tick.Minute(),
		logger:  slog.Default(),
	}, nil
}

// Run sleeps until the next tick, sweeps, and repeats until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		next := r.nextTick(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if _, err := r.RunOnce(time.Now()); err != nil {
			r.logger.Error("daily sweep failed", "error", err)
		}
	}
}

// RunOnce performs a single sweep as of now.
func (r *Runner) RunOnce(now time.Time) (int, error) {
	n, err := r.sweeper.SweepIncomplete(now)
	if err != nil {
		return n, err
	}
	r.logger.Info("sweep finished", "incomplete_logged", n)
	return n, nil
}

// nextTick returns the next instant at HH:MM strictly after now.
func (r *Runner) nextTick(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
