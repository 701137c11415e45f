package domain

import (
	"time"
)

// JobID is the caller-supplied identifier of a download job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// MediaKind selects what a job extracts from the source URL.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaKindVideo || k == MediaKindAudio
}

// JobStatus is the registry-level state of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// TransferOptions is the transfer configuration handed to the downloader.
type TransferOptions struct {
	// OutputTemplate is a yt-dlp style output template, e.g.
	// "/data/recent_downloads/9999_%(title)s.%(ext)s".
	OutputTemplate string
	Format         string
	// MergeFormat is the container used when video and audio streams are
	// merged. Empty for audio jobs.
	MergeFormat string
	// AudioCodec enables audio extraction to the given codec. Empty for
	// video jobs.
	AudioCodec    string
	Continue      bool
	Retries       int
	SocketTimeout time.Duration
}

// Job is one download request in flight.
type Job struct {
	ID        JobID
	URL       string
	Kind      MediaKind
	Options   TransferOptions
	Status    JobStatus
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a running job.
func NewJob(id JobID, url string, kind MediaKind, opts TransferOptions) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		URL:       url,
		Kind:      kind,
		Options:   opts,
		Status:    JobStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed updates the job status to failed.
func (j *Job) MarkFailed() {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
