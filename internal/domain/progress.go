package domain

// Defaults returned for a job id the progress store has never seen.
const (
	DefaultPercent = "0"
	DefaultStatus  = "Waiting..."
)

// Status messages published while a job runs.
const (
	StatusPreparingVideo        = "Preparing download..."
	StatusPreparingAudio        = "Preparing audio download..."
	StatusDownloading           = "Downloading..."
	StatusNetworkLost           = "Network lost, download paused"
	StatusNetworkRestored       = "Network restored, resuming download"
	StatusTimedOut              = "Download failed after timeout"
	StatusDownloadErrorPrefix   = "Download error: "
	StatusUnexpectedErrorPrefix = "Unexpected error: "
)

// ProgressEntry is the poller-visible state of one job.
type ProgressEntry struct {
	Percent string `json:"progress"`
	Status  string `json:"status"`
}
