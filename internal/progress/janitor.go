package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is a store that can evict stale entries.
type Sweeper interface {
	Sweep(ttl time.Duration) int
}

// Janitor periodically evicts progress entries older than a TTL.
type Janitor struct {
	store  Sweeper
	ttl    time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor schedules store sweeps using a cron spec such as "@every 1m".
func NewJanitor(store Sweeper, ttl time.Duration, schedule string, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(),
		logger: logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule progress sweep %q: %w", schedule, err)
	}

	return j, nil
}

// Start begins running scheduled sweeps in the background.
func (j *Janitor) Start() {
	j.logger.Info("starting progress janitor", "ttl", j.ttl)
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to be done.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() {
	if removed := j.store.Sweep(j.ttl); removed > 0 {
		j.logger.Info("evicted stale progress entries", "removed", removed)
	}
}
