package domain

import (
	"errors"
	"strings"
)

// Domain errors.
var (
	// ErrMissingURL is returned when a download request has no source URL.
	ErrMissingURL = errors.New("missing video_url")

	// ErrInvalidJSON is returned when a request body cannot be decoded.
	ErrInvalidJSON = errors.New("invalid JSON format")

	// ErrInvalidMediaKind is returned for media kinds other than audio or video.
	ErrInvalidMediaKind = errors.New("invalid media kind")

	// ErrMethodNotAllowed is returned for non-POST download requests.
	ErrMethodNotAllowed = errors.New("invalid request method")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobInFlight is returned when a job id is already being downloaded.
	ErrJobInFlight = errors.New("job already in progress")

	// ErrTransientTransfer marks transfer failures that are retried.
	ErrTransientTransfer = errors.New("transient transfer error")

	// ErrFatalTransfer marks transfer failures that abort the job.
	ErrFatalTransfer = errors.New("fatal transfer error")

	// ErrDownloadTimeout is returned when the overall deadline is exceeded.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrUnexpected wraps failures outside the transfer error taxonomy.
	ErrUnexpected = errors.New("unexpected error")

	// ErrMediaNotFound is returned when a downloaded file cannot be found.
	ErrMediaNotFound = errors.New("media file not found")
)

// dnsSignatures are substrings of resolver failures reported by yt-dlp.
var dnsSignatures = []string{
	"getaddrinfo failed",
	"Failed to resolve",
	"Temporary failure in name resolution",
}

// IsDNSFailure reports whether msg looks like a DNS resolution failure.
func IsDNSFailure(msg string) bool {
	for _, sig := range dnsSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// TransferError is a failure reported by the download capability itself,
// as opposed to a failure to run it.
type TransferError struct {
	Message string
	Err     error
}

func (e *TransferError) Error() string {
	return e.Message
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is eligible for automatic retry.
func (e *TransferError) Transient() bool {
	return IsDNSFailure(e.Message)
}

// Is lets errors.Is match the classification sentinels.
func (e *TransferError) Is(target error) bool {
	switch target {
	case ErrTransientTransfer:
		return e.Transient()
	case ErrFatalTransfer:
		return !e.Transient()
	}
	return false
}

// NewTransferError creates a TransferError.
func NewTransferError(message string, err error) *TransferError {
	return &TransferError{Message: message, Err: err}
}

// DispatchErrorKind tags a failure at the dispatcher boundary.
type DispatchErrorKind string

const (
	DispatchValidation       DispatchErrorKind = "validation"
	DispatchMethodNotAllowed DispatchErrorKind = "method_not_allowed"
	DispatchConflict         DispatchErrorKind = "conflict"
	DispatchTransfer         DispatchErrorKind = "transfer"
	DispatchTimeout          DispatchErrorKind = "timeout"
	DispatchUnexpected       DispatchErrorKind = "unexpected"
)

// DispatchError is the tagged error result returned by the job dispatcher.
// Message is safe to show to clients.
type DispatchError struct {
	JobID   JobID
	Kind    DispatchErrorKind
	Message string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.JobID != "" {
		return "dispatch [" + e.JobID.String() + "]: " + e.Message
	}
	return "dispatch: " + e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(jobID JobID, kind DispatchErrorKind, message string, err error) *DispatchError {
	return &DispatchError{
		JobID:   jobID,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}
