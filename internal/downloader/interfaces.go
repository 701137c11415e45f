package downloader

import (
	"context"

	"github.com/iconidentify/grabba-media/internal/domain"
)

// ProgressStatus is the phase reported by a progress update.
type ProgressStatus string

const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
)

// ProgressUpdate is one raw progress report from the transfer.
type ProgressUpdate struct {
	Status ProgressStatus
	// PercentText is the downloader's own rendering, e.g. "\x1b[0;94m 45.2%\x1b[0m".
	PercentText string
	Filename    string
}

// ProgressFunc receives progress updates. It is called from the transfer's
// goroutine and must not block for long.
type ProgressFunc func(ProgressUpdate)

// Downloader transfers media from a URL to local storage.
type Downloader interface {
	// Fetch downloads url using opts and returns the produced file path.
	// Failures reported by the download tool are *domain.TransferError;
	// any other error means the tool could not be run at all.
	Fetch(ctx context.Context, url string, opts domain.TransferOptions, onProgress ProgressFunc) (string, error)
}
