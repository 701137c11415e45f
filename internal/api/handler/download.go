package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/service"
)

// Downloads is the service behind the download endpoints.
type Downloads interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	Status(ctx context.Context, id domain.JobID) domain.ProgressEntry
	ListMedia(ctx context.Context, kind domain.MediaKind, limit, offset int) ([]*domain.CompletedMedia, int, error)
}

// DownloadHandler handles download, progress and media listing requests.
type DownloadHandler struct {
	downloads Downloads
	logger    *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloads Downloads, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		logger:    logger,
	}
}

// DownloadRequest is the JSON request body for both download endpoints.
type DownloadRequest struct {
	VideoURL string `json:"video_url"`
}

// MediaListResponse contains a page of completed downloads.
type MediaListResponse struct {
	Media  []*domain.CompletedMedia `json:"media"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// DownloadVideo handles /download_video/{jobID}.
func (h *DownloadHandler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, domain.MediaKindVideo)
}

// DownloadAudio handles /download_audio/{jobID}.
func (h *DownloadHandler) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, domain.MediaKindAudio)
}

func (h *DownloadHandler) download(w http.ResponseWriter, r *http.Request, kind domain.MediaKind) {
	jobID := domain.JobID(chi.URLParam(r, "jobID"))

	if r.Method != http.MethodPost {
		h.writeDispatchError(w, domain.NewDispatchError(jobID, domain.DispatchMethodNotAllowed, "Invalid request method", domain.ErrMethodNotAllowed))
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDispatchError(w, domain.NewDispatchError(jobID, domain.DispatchValidation, "Invalid JSON format", domain.ErrInvalidJSON))
		return
	}

	result, err := h.downloads.Submit(r.Context(), service.SubmitRequest{
		JobID: jobID,
		URL:   req.VideoURL,
		Kind:  kind,
	})
	if err != nil {
		var de *domain.DispatchError
		if errors.As(err, &de) {
			h.writeDispatchError(w, de)
			return
		}
		h.logger.Error("download failed", "job_id", jobID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.StatusUnexpectedErrorPrefix+err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Progress handles /progress/{jobID}. Unknown jobs report the defaults.
func (h *DownloadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := domain.JobID(chi.URLParam(r, "jobID"))
	h.writeJSON(w, http.StatusOK, h.downloads.Status(r.Context(), jobID))
}

// ListMedia handles GET /media
func (h *DownloadHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	kind := domain.MediaKind(r.URL.Query().Get("kind"))

	items, total, err := h.downloads.ListMedia(r.Context(), kind, limit, offset)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMediaKind) {
			h.writeError(w, http.StatusBadRequest, "invalid media kind")
			return
		}
		h.logger.Error("list media failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list media")
		return
	}

	h.writeJSON(w, http.StatusOK, MediaListResponse{
		Media:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *DownloadHandler) writeDispatchError(w http.ResponseWriter, err *domain.DispatchError) {
	status := http.StatusInternalServerError
	switch err.Kind {
	case domain.DispatchValidation:
		status = http.StatusBadRequest
	case domain.DispatchMethodNotAllowed:
		status = http.StatusMethodNotAllowed
	case domain.DispatchConflict:
		status = http.StatusConflict
	}
	h.writeError(w, status, err.Message)
}

func (h *DownloadHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
