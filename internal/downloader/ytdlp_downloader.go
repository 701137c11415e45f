package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/iconidentify/grabba-media/internal/config"
	"github.com/iconidentify/grabba-media/internal/domain"
)

// progressInterval is how often yt-dlp progress is forwarded.
const progressInterval = 500 * time.Millisecond

// YTDLPDownloader implements Downloader by running the yt-dlp binary.
type YTDLPDownloader struct {
	executable string
	logger     *slog.Logger
}

// NewYTDLPDownloader creates a yt-dlp backed downloader.
func NewYTDLPDownloader(cfg config.DownloadConfig) *YTDLPDownloader {
	return &YTDLPDownloader{
		executable: cfg.Executable,
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for download reporting.
func (d *YTDLPDownloader) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// Fetch runs one yt-dlp invocation for url.
func (d *YTDLPDownloader) Fetch(ctx context.Context, url string, opts domain.TransferOptions, onProgress ProgressFunc) (string, error) {
	// Last finished filename seen in progress, used when yt-dlp does not
	// print its info JSON.
	var mu sync.Mutex
	var lastFile string

	cmd := d.buildCommand(opts).
		ProgressFunc(progressInterval, func(u ytdlp.ProgressUpdate) {
			update, ok := translateProgress(u.Status, u.PercentString(), u.Filename)
			if !ok {
				return
			}
			if update.Status == ProgressFinished && update.Filename != "" {
				mu.Lock()
				lastFile = update.Filename
				mu.Unlock()
			}
			if onProgress != nil {
				onProgress(update)
			}
		})

	res, err := cmd.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("run yt-dlp: %w", ctx.Err())
		}
		if res != nil && res.ExitCode > 0 {
			msg := errorMessage(res.Stderr, err)
			d.logger.Warn("yt-dlp reported an error", "url", url, "exit_code", res.ExitCode, "error", msg)
			return "", domain.NewTransferError(msg, err)
		}
		return "", fmt.Errorf("run yt-dlp: %w", err)
	}

	if path := extractedFilename(res); path != "" {
		return path, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if lastFile == "" {
		return "", fmt.Errorf("yt-dlp finished without reporting a file: %w", domain.ErrMediaNotFound)
	}
	return lastFile, nil
}

func (d *YTDLPDownloader) buildCommand(opts domain.TransferOptions) *ytdlp.Command {
	cmd := ytdlp.New().
		PrintJSON().
		Format(opts.Format).
		Output(opts.OutputTemplate)

	if d.executable != "" {
		cmd = cmd.SetExecutable(d.executable)
	}
	if opts.MergeFormat != "" {
		cmd = cmd.MergeOutputFormat(opts.MergeFormat)
	}
	if opts.AudioCodec != "" {
		cmd = cmd.ExtractAudio().AudioFormat(opts.AudioCodec)
	}
	if opts.Continue {
		cmd = cmd.Continue()
	}
	if opts.Retries > 0 {
		cmd = cmd.Retries(strconv.Itoa(opts.Retries))
	}
	if opts.SocketTimeout > 0 {
		cmd = cmd.SocketTimeout(opts.SocketTimeout.Seconds())
	}
	return cmd
}

func extractedFilename(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	info, err := res.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return ""
	}
	if info[0].Filename != nil {
		return *info[0].Filename
	}
	return ""
}

// translateProgress maps a yt-dlp progress status onto the statuses the
// resume controller understands. Other phases are dropped.
func translateProgress(status ytdlp.ProgressStatus, percent, filename string) (ProgressUpdate, bool) {
	switch status {
	case ytdlp.ProgressStatusDownloading:
		return ProgressUpdate{Status: ProgressDownloading, PercentText: percent, Filename: filename}, true
	case ytdlp.ProgressStatusFinished:
		return ProgressUpdate{Status: ProgressFinished, PercentText: percent, Filename: filename}, true
	}
	return ProgressUpdate{}, false
}

// errorMessage picks the most specific failure text from yt-dlp stderr:
// the last "ERROR:" line, else the last non-empty line, else err.
func errorMessage(stderr string, err error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	if err != nil {
		return err.Error()
	}
	return "unknown yt-dlp error"
}
