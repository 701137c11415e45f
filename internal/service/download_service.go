package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/grabba-media/internal/config"
	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/metrics"
	"github.com/iconidentify/grabba-media/internal/progress"
	"github.com/iconidentify/grabba-media/internal/repository"
	"github.com/iconidentify/grabba-media/internal/resume"
)

// reverseBase is subtracted from the unix time so newer files sort first.
const reverseBase = 9999999999

// publicFailure is the client-facing message for any failed job.
const publicFailure = "Download failed"

// JobRunner runs one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, job *domain.Job) (*resume.Result, error)
}

// Executor runs fn on a worker and blocks until it returns.
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context)) error
}

// JobRecorder receives job outcome metrics.
type JobRecorder interface {
	JobStarted(kind string)
	JobFinished(kind, outcome string, elapsed time.Duration)
	JobRejected(kind string)
}

type nopJobRecorder struct{}

func (nopJobRecorder) JobStarted(string)                         {}
func (nopJobRecorder) JobFinished(string, string, time.Duration) {}
func (nopJobRecorder) JobRejected(string)                        {}

// SubmitRequest is a download request from the HTTP layer.
type SubmitRequest struct {
	JobID domain.JobID
	URL   string
	Kind  domain.MediaKind
}

// SubmitResult is returned for a completed download.
type SubmitResult struct {
	FileURL string       `json:"file_url"`
	JobID   domain.JobID `json:"unique_id"`
}

// DownloadService accepts download jobs and reports their progress.
type DownloadService struct {
	storage  config.StorageConfig
	download config.DownloadConfig
	runner   JobRunner
	executor Executor
	tracker  *progress.Tracker
	jobs     repository.JobRepository
	media    repository.MediaRepository
	recorder JobRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewDownloadService creates a new download service.
func NewDownloadService(
	storage config.StorageConfig,
	download config.DownloadConfig,
	runner JobRunner,
	executor Executor,
	tracker *progress.Tracker,
	jobs repository.JobRepository,
	media repository.MediaRepository,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		storage:  storage,
		download: download,
		runner:   runner,
		executor: executor,
		tracker:  tracker,
		jobs:     jobs,
		media:    media,
		recorder: nopJobRecorder{},
		now:      time.Now,
		logger:   logger,
	}
}

// SetRecorder sets the job metrics recorder.
func (s *DownloadService) SetRecorder(r JobRecorder) {
	s.recorder = r
}

// Submit runs a download job to completion and returns the public file URL.
// Failures are *domain.DispatchError.
func (s *DownloadService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !req.Kind.Valid() {
		return nil, domain.NewDispatchError(req.JobID, domain.DispatchValidation, "Invalid media kind", domain.ErrInvalidMediaKind)
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, domain.NewDispatchError(req.JobID, domain.DispatchValidation, "Missing video_url", domain.ErrMissingURL)
	}

	logger := s.logger.With("job_id", req.JobID, "kind", req.Kind)

	dir := s.storage.RecentPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, s.unexpected(req.JobID, fmt.Errorf("create download directory: %w", err))
	}

	job := domain.NewJob(req.JobID, url, req.Kind, s.transferOptions(req.Kind, dir))
	if err := s.jobs.Claim(ctx, job); err != nil {
		if errors.Is(err, domain.ErrJobInFlight) {
			s.recorder.JobRejected(string(req.Kind))
			return nil, domain.NewDispatchError(req.JobID, domain.DispatchConflict, "Download already in progress", err)
		}
		return nil, s.unexpected(req.JobID, err)
	}

	s.tracker.Init(ctx, req.JobID, preparingStatus(req.Kind))
	logger.Info("download accepted", "url", url, "output", job.Options.OutputTemplate)

	// Client disconnects must not abort the transfer.
	runCtx := context.WithoutCancel(ctx)
	started := s.now()
	s.recorder.JobStarted(string(req.Kind))

	var res *resume.Result
	var runErr error
	poolErr := s.executor.Do(runCtx, func(ctx context.Context) {
		res, runErr = s.runner.Run(ctx, job)
	})

	if poolErr != nil {
		s.finish(runCtx, job, domain.JobStatusFailed, metrics.OutcomeFatal, started)
		s.tracker.SetStatus(runCtx, req.JobID, domain.StatusUnexpectedErrorPrefix+poolErr.Error())
		return nil, s.unexpected(req.JobID, poolErr)
	}

	if runErr != nil {
		kind, outcome := classify(runErr)
		s.finish(runCtx, job, domain.JobStatusFailed, outcome, started)
		logger.Error("download failed", "error", runErr)
		return nil, domain.NewDispatchError(req.JobID, kind, publicFailure, runErr)
	}

	s.finish(runCtx, job, domain.JobStatusCompleted, metrics.OutcomeSucceeded, started)

	name := s.publicFileName(req.Kind, res.FilePath)
	s.record(runCtx, logger, &domain.CompletedMedia{
		URL:      url,
		Kind:     req.Kind,
		FileName: name,
	})

	logger.Info("download completed",
		"file", name,
		"attempts", res.Attempts,
		"size", fileSize(res.FilePath),
		"elapsed", res.Elapsed,
	)

	return &SubmitResult{
		FileURL: s.storage.PublicPrefix + name,
		JobID:   req.JobID,
	}, nil
}

// Status returns the progress entry for id. It never fails.
func (s *DownloadService) Status(ctx context.Context, id domain.JobID) domain.ProgressEntry {
	return s.tracker.Get(ctx, id)
}

// ListMedia returns completed downloads newest first.
func (s *DownloadService) ListMedia(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, int, error) {
	if kind != "" && !kind.Valid() {
		return nil, 0, domain.ErrInvalidMediaKind
	}

	items, err := s.media.List(ctx, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list media: %w", err)
	}
	total, err := s.media.Count(ctx, kind)
	if err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}
	return items, total, nil
}

// JobStats returns in-flight job statistics.
func (s *DownloadService) JobStats(ctx context.Context) (*repository.JobStats, error) {
	return s.jobs.Stats(ctx)
}

func (s *DownloadService) transferOptions(kind domain.MediaKind, dir string) domain.TransferOptions {
	opts := domain.TransferOptions{
		OutputTemplate: filepath.Join(dir, ReverseTimestamp(s.now())+"_%(title)s.%(ext)s"),
		Continue:       true,
		Retries:        s.download.Retries,
		SocketTimeout:  s.download.SocketTimeout,
	}

	switch kind {
	case domain.MediaKindAudio:
		opts.Format = s.download.AudioFormat
		opts.AudioCodec = s.download.AudioCodec
	default:
		opts.Format = s.download.VideoFormat
		opts.MergeFormat = s.download.MergeFormat
	}
	return opts
}

func (s *DownloadService) finish(ctx context.Context, job *domain.Job, status domain.JobStatus, outcome string, started time.Time) {
	if err := s.jobs.Release(ctx, job.ID, status); err != nil {
		s.logger.Warn("failed to release job", "job_id", job.ID, "error", err)
	}
	s.recorder.JobFinished(string(job.Kind), outcome, s.now().Sub(started))
}

// record stores the catalog entry. A catalog failure does not fail the
// download.
func (s *DownloadService) record(ctx context.Context, logger *slog.Logger, m *domain.CompletedMedia) {
	if err := s.media.Create(ctx, m); err != nil {
		logger.Error("failed to record completed media", "error", err)
		return
	}
	logger.Debug("media recorded", "media", m.String(), "id", m.ID)
}

func (s *DownloadService) unexpected(id domain.JobID, err error) error {
	s.logger.Error("dispatch failed", "job_id", id, "error", err)
	return domain.NewDispatchError(id, domain.DispatchUnexpected, domain.StatusUnexpectedErrorPrefix+err.Error(), err)
}

// ReverseTimestamp returns 9999999999 minus the unix time, zero padded to
// ten digits, so lexicographic order is newest first.
func ReverseTimestamp(t time.Time) string {
	return fmt.Sprintf("%010d", reverseBase-t.Unix())
}

func preparingStatus(kind domain.MediaKind) string {
	if kind == domain.MediaKindAudio {
		return domain.StatusPreparingAudio
	}
	return domain.StatusPreparingVideo
}

// publicFileName is the base name served to clients. Audio extraction
// rewrites the extension to the codec after the transfer reports its file.
func (s *DownloadService) publicFileName(kind domain.MediaKind, path string) string {
	base := filepath.Base(path)
	if kind == domain.MediaKindAudio {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + "." + s.download.AudioCodec
	}
	return base
}

func classify(err error) (domain.DispatchErrorKind, string) {
	var te *domain.TransferError
	switch {
	case errors.Is(err, domain.ErrDownloadTimeout):
		return domain.DispatchTimeout, metrics.OutcomeTimeout
	case errors.As(err, &te):
		return domain.DispatchTransfer, metrics.OutcomeFatal
	default:
		return domain.DispatchUnexpected, metrics.OutcomeFatal
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
