package progress

import (
	"context"

	"github.com/iconidentify/grabba-media/internal/domain"
)

// Tracker maps job ids onto the progress_<id> and status_<id> keys of a KV.
type Tracker struct {
	kv KV
}

// NewTracker creates a tracker backed by kv.
func NewTracker(kv KV) *Tracker {
	return &Tracker{kv: kv}
}

func percentKey(id domain.JobID) string { return "progress_" + id.String() }
func statusKey(id domain.JobID) string { return "status_" + id.String() }

// Init resets the entry for a newly accepted job.
func (t *Tracker) Init(ctx context.Context, id domain.JobID, status string) {
	t.kv.Set(ctx, percentKey(id), domain.DefaultPercent)
	t.kv.Set(ctx, statusKey(id), status)
}

// SetPercent publishes a normalized percent value.
func (t *Tracker) SetPercent(ctx context.Context, id domain.JobID, percent string) {
	t.kv.Set(ctx, percentKey(id), percent)
}

// SetStatus publishes a status message.
func (t *Tracker) SetStatus(ctx context.Context, id domain.JobID, status string) {
	t.kv.Set(ctx, statusKey(id), status)
}

// Get returns the current entry, falling back to "0" and "Waiting..." for
// unknown ids.
func (t *Tracker) Get(ctx context.Context, id domain.JobID) domain.ProgressEntry {
	return domain.ProgressEntry{
		Percent: t.kv.Get(ctx, percentKey(id), domain.DefaultPercent),
		Status:  t.kv.Get(ctx, statusKey(id), domain.DefaultStatus),
	}
}
