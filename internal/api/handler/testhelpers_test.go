package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/repository"
	"github.com/iconidentify/grabba-media/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDownloads is a test implementation of Downloads.
type mockDownloads struct {
	submitReq    service.SubmitRequest
	submitCalls  int
	submitResult *service.SubmitResult
	submitErr    error

	entries map[domain.JobID]domain.ProgressEntry

	media      []*domain.CompletedMedia
	mediaTotal int
	mediaErr   error
	listKind   domain.MediaKind
	listLimit  int
	listOffset int
}

func newMockDownloads() *mockDownloads {
	return &mockDownloads{entries: make(map[domain.JobID]domain.ProgressEntry)}
}

func (m *mockDownloads) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	m.submitCalls++
	m.submitReq = req
	return m.submitResult, m.submitErr
}

func (m *mockDownloads) Status(ctx context.Context, id domain.JobID) domain.ProgressEntry {
	if e, ok := m.entries[id]; ok {
		return e
	}
	return domain.ProgressEntry{Percent: domain.DefaultPercent, Status: domain.DefaultStatus}
}

func (m *mockDownloads) ListMedia(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, int, error) {
	m.listKind, m.listLimit, m.listOffset = kind, limit, offset
	return m.media, m.mediaTotal, m.mediaErr
}

// mockJobStats is a test implementation of JobStatser.
type mockJobStats struct {
	stats *repository.JobStats
	err   error
}

func (m *mockJobStats) Stats(ctx context.Context) (*repository.JobStats, error) {
	return m.stats, m.err
}
