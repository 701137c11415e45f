package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/service"
)

// withJobID attaches the chi route param the router would set.
func withJobID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["error"]
}

func TestDownloadHandler_Success(t *testing.T) {
	svc := newMockDownloads()
	svc.submitResult = &service.SubmitResult{FileURL: "/downloads/inno8230000000_clip.mp4", JobID: "abc123"}
	h := NewDownloadHandler(svc, testLogger())

	req := withJobID(httptest.NewRequest(http.MethodPost, "/download_video/abc123", strings.NewReader(`{"video_url":"https://example.com/v"}`)), "abc123")
	w := httptest.NewRecorder()

	h.DownloadVideo(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["file_url"] != "/downloads/inno8230000000_clip.mp4" {
		t.Errorf("file_url = %q", resp["file_url"])
	}
	if resp["unique_id"] != "abc123" {
		t.Errorf("unique_id = %q", resp["unique_id"])
	}

	if svc.submitReq.JobID != "abc123" {
		t.Errorf("JobID = %q, want abc123", svc.submitReq.JobID)
	}
	if svc.submitReq.URL != "https://example.com/v" {
		t.Errorf("URL = %q", svc.submitReq.URL)
	}
	if svc.submitReq.Kind != domain.MediaKindVideo {
		t.Errorf("Kind = %q, want video", svc.submitReq.Kind)
	}
}

func TestDownloadHandler_AudioKind(t *testing.T) {
	svc := newMockDownloads()
	svc.submitResult = &service.SubmitResult{FileURL: "/downloads/innox.mp3", JobID: "a1"}
	h := NewDownloadHandler(svc, testLogger())

	req := withJobID(httptest.NewRequest(http.MethodPost, "/download_audio/a1", strings.NewReader(`{"video_url":"https://example.com/v"}`)), "a1")
	w := httptest.NewRecorder()

	h.DownloadAudio(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if svc.submitReq.Kind != domain.MediaKindAudio {
		t.Errorf("Kind = %q, want audio", svc.submitReq.Kind)
	}
}

func TestDownloadHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		submitErr  error
		wantStatus int
		wantError  string
		wantSubmit bool
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantError:  "Invalid request method",
		},
		{
			name:       "bad json",
			method:     http.MethodPost,
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON format",
		},
		{
			name:       "missing url",
			method:     http.MethodPost,
			body:       `{}`,
			submitErr:  domain.NewDispatchError("j", domain.DispatchValidation, "Missing video_url", domain.ErrMissingURL),
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing video_url",
			wantSubmit: true,
		},
		{
			name:       "duplicate job",
			method:     http.MethodPost,
			body:       `{"video_url":"u"}`,
			submitErr:  domain.NewDispatchError("j", domain.DispatchConflict, "Download already in progress", domain.ErrJobInFlight),
			wantStatus: http.StatusConflict,
			wantError:  "Download already in progress",
			wantSubmit: true,
		},
		{
			name:       "transfer failure",
			method:     http.MethodPost,
			body:       `{"video_url":"u"}`,
			submitErr:  domain.NewDispatchError("j", domain.DispatchTransfer, "Download failed", domain.ErrFatalTransfer),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Download failed",
			wantSubmit: true,
		},
		{
			name:       "timeout",
			method:     http.MethodPost,
			body:       `{"video_url":"u"}`,
			submitErr:  domain.NewDispatchError("j", domain.DispatchTimeout, "Download failed", domain.ErrDownloadTimeout),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Download failed",
			wantSubmit: true,
		},
		{
			name:       "unexpected dispatch failure",
			method:     http.MethodPost,
			body:       `{"video_url":"u"}`,
			submitErr:  domain.NewDispatchError("j", domain.DispatchUnexpected, "Unexpected error: disk full", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unexpected error: disk full",
			wantSubmit: true,
		},
		{
			name:       "untagged error",
			method:     http.MethodPost,
			body:       `{"video_url":"u"}`,
			submitErr:  errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unexpected error: boom",
			wantSubmit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockDownloads()
			svc.submitErr = tt.submitErr
			h := NewDownloadHandler(svc, testLogger())

			req := withJobID(httptest.NewRequest(tt.method, "/download_video/j", strings.NewReader(tt.body)), "j")
			w := httptest.NewRecorder()

			h.DownloadVideo(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if (svc.submitCalls > 0) != tt.wantSubmit {
				t.Errorf("submit called = %v, want %v", svc.submitCalls > 0, tt.wantSubmit)
			}
		})
	}
}

func TestDownloadHandler_Progress(t *testing.T) {
	svc := newMockDownloads()
	svc.entries["abc"] = domain.ProgressEntry{Percent: "45", Status: "Downloading..."}
	h := NewDownloadHandler(svc, testLogger())

	tests := []struct {
		id   string
		want domain.ProgressEntry
	}{
		{"abc", domain.ProgressEntry{Percent: "45", Status: "Downloading..."}},
		{"unknown", domain.ProgressEntry{Percent: "0", Status: "Waiting..."}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := withJobID(httptest.NewRequest(http.MethodGet, "/progress/"+tt.id, nil), tt.id)
			w := httptest.NewRecorder()

			h.Progress(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var got domain.ProgressEntry
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if got != tt.want {
				t.Errorf("entry = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDownloadHandler_ListMedia(t *testing.T) {
	svc := newMockDownloads()
	svc.media = []*domain.CompletedMedia{
		{ID: "m1", URL: "https://example.com/1", Kind: domain.MediaKindAudio, FileName: "a.mp3", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	svc.mediaTotal = 7
	h := NewDownloadHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/media?kind=audio&limit=10&offset=5", nil)
	w := httptest.NewRecorder()

	h.ListMedia(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Media []struct {
			ID        string `json:"id"`
			MediaType string `json:"media_type"`
		} `json:"media"`
		Total  int `json:"total"`
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Total != 7 || resp.Limit != 10 || resp.Offset != 5 {
		t.Errorf("paging = %d/%d/%d, want 7/10/5", resp.Total, resp.Limit, resp.Offset)
	}
	if len(resp.Media) != 1 || resp.Media[0].MediaType != "audio" {
		t.Errorf("unexpected media: %+v", resp.Media)
	}
	if svc.listKind != domain.MediaKindAudio {
		t.Errorf("kind = %q, want audio", svc.listKind)
	}
}

func TestDownloadHandler_ListMediaDefaultsAndErrors(t *testing.T) {
	svc := newMockDownloads()
	h := NewDownloadHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/media?limit=1000&offset=-1", nil)
	w := httptest.NewRecorder()
	h.ListMedia(w, req)

	if svc.listLimit != 50 || svc.listOffset != 0 {
		t.Errorf("limit/offset = %d/%d, want 50/0", svc.listLimit, svc.listOffset)
	}

	svc.mediaErr = domain.ErrInvalidMediaKind
	w = httptest.NewRecorder()
	h.ListMedia(w, httptest.NewRequest(http.MethodGet, "/media?kind=podcast", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	svc.mediaErr = errors.New("db gone")
	w = httptest.NewRecorder()
	h.ListMedia(w, httptest.NewRequest(http.MethodGet, "/media", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
