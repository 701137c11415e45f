// Package resume drives a single download job through connectivity loss,
// DNS failures and the overall deadline.
package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/grabba-media/internal/config"
	"github.com/iconidentify/grabba-media/internal/connectivity"
	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/downloader"
)

// Reporter receives the job's progress entry updates.
type Reporter interface {
	SetPercent(ctx context.Context, id domain.JobID, percent string)
	SetStatus(ctx context.Context, id domain.JobID, status string)
}

// Recorder receives controller counters.
type Recorder interface {
	TransferAttempt(kind string)
	NetworkWait()
}

// Clock abstracts time so the state machine can be driven in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) TransferAttempt(string) {}
func (nopRecorder) NetworkWait()           {}

// Options are the controller timings.
type Options struct {
	Deadline          time.Duration
	NetworkWaitWindow time.Duration
	PollInterval      time.Duration
	DNSRetryDelay     time.Duration
}

// OptionsFromConfig extracts controller timings from the download config.
func OptionsFromConfig(cfg config.DownloadConfig) Options {
	return Options{
		Deadline:          cfg.Deadline,
		NetworkWaitWindow: cfg.NetworkWaitWindow,
		PollInterval:      cfg.NetworkPollInterval,
		DNSRetryDelay:     cfg.DNSRetryDelay,
	}
}

// Result is the terminal outcome of Run.
type Result struct {
	State    State
	FilePath string
	Attempts int
	Elapsed  time.Duration
	// Detail is the raw failure message for failed states.
	Detail string
}

// Controller runs jobs through the resume state machine.
type Controller struct {
	prober     connectivity.Prober
	downloader downloader.Downloader
	reporter   Reporter
	recorder   Recorder
	clock      Clock
	opts       Options
	logger     *slog.Logger
}

// NewController creates a controller using the wall clock.
func NewController(
	prober connectivity.Prober,
	dl downloader.Downloader,
	reporter Reporter,
	opts Options,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		prober:     prober,
		downloader: dl,
		reporter:   reporter,
		recorder:   nopRecorder{},
		clock:      realClock{},
		opts:       opts,
		logger:     logger,
	}
}

// SetRecorder sets the metrics recorder.
func (c *Controller) SetRecorder(r Recorder) {
	c.recorder = r
}

// SetClock replaces the wall clock.
func (c *Controller) SetClock(clock Clock) {
	c.clock = clock
}

// Run drives job until it succeeds, fails fatally or runs out of time.
// The returned error wraps domain.ErrDownloadTimeout, a *domain.TransferError
// or domain.ErrUnexpected.
func (c *Controller) Run(ctx context.Context, job *domain.Job) (*Result, error) {
	logger := c.logger.With("job_id", job.ID, "kind", job.Kind)
	start := c.clock.Now()
	res := &Result{State: StateProbing}
	var runErr error

	transition := func(next State, status string) {
		if status != "" {
			c.reporter.SetStatus(ctx, job.ID, status)
		}
		logger.Debug("state transition", "from", res.State.String(), "to", next.String())
		res.State = next
	}

	for !res.State.Terminal() {
		switch res.State {
		case StateProbing:
			if c.clock.Now().Sub(start) > c.opts.Deadline {
				transition(StateFailedTimeout, domain.StatusTimedOut)
				runErr = fmt.Errorf("job %s: %w", job.ID, domain.ErrDownloadTimeout)
				continue
			}
			if c.prober.Reachable(ctx) {
				transition(StateTransferring, "")
				continue
			}
			logger.Warn("network unreachable, pausing download")
			c.recorder.NetworkWait()
			transition(StateNetworkWait, domain.StatusNetworkLost)

		case StateNetworkWait:
			restored, err := c.waitForNetwork(ctx)
			if err != nil {
				res.Detail = err.Error()
				transition(StateFailedFatal, domain.StatusUnexpectedErrorPrefix+res.Detail)
				runErr = fmt.Errorf("job %s: %w: %w", job.ID, domain.ErrUnexpected, err)
				continue
			}
			if restored {
				logger.Info("network restored")
				transition(StateTransferring, domain.StatusNetworkRestored)
				continue
			}
			transition(StateProbing, "")

		case StateTransferring:
			c.reporter.SetStatus(ctx, job.ID, domain.StatusDownloading)
			res.Attempts++
			c.recorder.TransferAttempt(string(job.Kind))
			logger.Info("starting transfer", "attempt", res.Attempts)

			path, err := c.downloader.Fetch(ctx, job.URL, job.Options, c.progressFunc(ctx, job.ID))
			if err == nil {
				res.FilePath = path
				transition(StateSucceeded, "")
				continue
			}

			var te *domain.TransferError
			if !errors.As(err, &te) {
				res.Detail = err.Error()
				logger.Error("unexpected transfer failure", "error", err)
				transition(StateFailedFatal, domain.StatusUnexpectedErrorPrefix+res.Detail)
				runErr = fmt.Errorf("job %s: %w: %w", job.ID, domain.ErrUnexpected, err)
				continue
			}

			res.Detail = te.Message
			c.reporter.SetStatus(ctx, job.ID, domain.StatusDownloadErrorPrefix+te.Message)
			if !te.Transient() {
				logger.Error("transfer failed", "error", te.Message)
				transition(StateFailedFatal, "")
				runErr = fmt.Errorf("job %s: %w", job.ID, te)
				continue
			}

			logger.Warn("dns failure, retrying", "error", te.Message, "backoff", c.opts.DNSRetryDelay)
			if err := c.clock.Sleep(ctx, c.opts.DNSRetryDelay); err != nil {
				res.Detail = err.Error()
				transition(StateFailedFatal, domain.StatusUnexpectedErrorPrefix+res.Detail)
				runErr = fmt.Errorf("job %s: %w: %w", job.ID, domain.ErrUnexpected, err)
				continue
			}
			transition(StateProbing, "")
		}
	}

	res.Elapsed = c.clock.Now().Sub(start)
	logger.Info("job finished",
		"state", res.State.String(),
		"attempts", res.Attempts,
		"elapsed", res.Elapsed,
	)
	return res, runErr
}

// waitForNetwork probes immediately and then every poll interval until the
// wait window closes.
func (c *Controller) waitForNetwork(ctx context.Context) (bool, error) {
	start := c.clock.Now()
	for c.clock.Now().Sub(start) < c.opts.NetworkWaitWindow {
		if c.prober.Reachable(ctx) {
			return true, nil
		}
		if err := c.clock.Sleep(ctx, c.opts.PollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Controller) progressFunc(ctx context.Context, id domain.JobID) downloader.ProgressFunc {
	return func(u downloader.ProgressUpdate) {
		switch u.Status {
		case downloader.ProgressDownloading:
			c.reporter.SetPercent(ctx, id, NormalizePercent(u.PercentText))
		case downloader.ProgressFinished:
			c.reporter.SetPercent(ctx, id, "100")
		}
	}
}
