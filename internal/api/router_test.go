package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/iconidentify/grabba-media/internal/api/handler"
	"github.com/iconidentify/grabba-media/internal/config"
	"github.com/iconidentify/grabba-media/internal/domain"
	"github.com/iconidentify/grabba-media/internal/metrics"
	"github.com/iconidentify/grabba-media/internal/progress"
	"github.com/iconidentify/grabba-media/internal/repository"
	"github.com/iconidentify/grabba-media/internal/resume"
	"github.com/iconidentify/grabba-media/internal/service"
	"github.com/iconidentify/grabba-media/internal/worker"
)

// stubRunner fakes a finished transfer and drops the bytes in the bucket.
type stubRunner struct {
	bucket  *blob.Bucket
	tracker *progress.Tracker
	err     error

	// When set, Run signals started and waits on release.
	started chan struct{}
	release chan struct{}
}

func (r *stubRunner) Run(ctx context.Context, job *domain.Job) (*resume.Result, error) {
	if r.started != nil {
		r.tracker.SetStatus(ctx, job.ID, domain.StatusDownloading)
		r.tracker.SetPercent(ctx, job.ID, "42")
		close(r.started)
		<-r.release
	}
	if r.err != nil {
		r.tracker.SetStatus(ctx, job.ID, domain.StatusTimedOut)
		return &resume.Result{State: resume.StateFailedTimeout}, r.err
	}

	ext := "mp4"
	if job.Kind == domain.MediaKindAudio {
		ext = "webm"
	}
	path := strings.NewReplacer("%(title)s", "clip", "%(ext)s", ext).Replace(job.Options.OutputTemplate)

	r.tracker.SetPercent(ctx, job.ID, "100")
	name := path[strings.LastIndex(path, "/")+1:]
	if job.Kind == domain.MediaKindAudio {
		name = strings.TrimSuffix(name, ".webm") + ".mp3"
	}
	if err := r.bucket.WriteAll(ctx, name, []byte("media:"+job.URL), nil); err != nil {
		return nil, err
	}
	return &resume.Result{State: resume.StateSucceeded, FilePath: path, Attempts: 1}, nil
}

type testServer struct {
	router http.Handler
	runner *stubRunner
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })

	storage := config.StorageConfig{
		BasePath:     t.TempDir(),
		RecentDir:    "recent_downloads",
		PublicPrefix: "/downloads/inno",
	}
	download := config.DownloadConfig{
		VideoFormat: "bestvideo+bestaudio/best",
		MergeFormat: "mp4",
		AudioFormat: "bestaudio/best",
		AudioCodec:  "mp3",
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tracker := progress.NewTracker(progress.NewMemoryStore())
	runner := &stubRunner{bucket: bucket, tracker: tracker}

	pool := worker.NewPool(worker.Config{Workers: 2, QueueSize: 4}, logger)
	pool.SetDepthReporter(m)
	pool.Start()
	t.Cleanup(func() { pool.Stop(time.Second) })

	jobs := repository.NewInMemoryJobRepository()
	svc := service.NewDownloadService(storage, download, runner, pool, tracker, jobs, repository.NewInMemoryMediaRepository(), logger)
	svc.SetRecorder(m)

	router := NewRouter(
		config.ServerConfig{RequestTimeout: time.Minute, APIKey: apiKey},
		handler.NewDownloadHandler(svc, logger),
		handler.NewFileHandler(bucket, storage.PublicPrefix, logger),
		handler.NewHealthHandler(jobs, storage.BasePath),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	return &testServer{router: router, runner: runner}
}

func (s *testServer) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestRouter_DownloadVideoAndFetchFile(t *testing.T) {
	srv := newTestServer(t, "")

	for _, target := range []string{"/download_video/abc123", "/download_video/abc124/"} {
		w := srv.do(http.MethodPost, target, `{"video_url":"https://example.com/watch?v=1"}`)
		require.Equal(t, http.StatusOK, w.Code, target)

		body := decodeBody(t, w)
		id := strings.TrimSuffix(strings.TrimPrefix(target, "/download_video/"), "/")
		assert.Equal(t, id, body["unique_id"])
		assert.True(t, strings.HasPrefix(body["file_url"], "/downloads/inno"), body["file_url"])
		assert.True(t, strings.HasSuffix(body["file_url"], "_clip.mp4"), body["file_url"])

		file := srv.do(http.MethodGet, body["file_url"], "")
		require.Equal(t, http.StatusOK, file.Code)
		assert.Equal(t, "media:https://example.com/watch?v=1", file.Body.String())

		progressResp := srv.do(http.MethodGet, "/progress/"+id, "")
		assert.Equal(t, http.StatusOK, progressResp.Code)
		assert.Equal(t, "100", decodeBody(t, progressResp)["progress"])
	}
}

func TestRouter_ProgressWhileRunning(t *testing.T) {
	srv := newTestServer(t, "")
	srv.runner.started = make(chan struct{})
	srv.runner.release = make(chan struct{})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- srv.do(http.MethodPost, "/download_video/abc123", `{"video_url":"https://example.com/v"}`)
	}()

	<-srv.runner.started
	w := srv.do(http.MethodGet, "/progress/abc123", "")
	require.Equal(t, http.StatusOK, w.Code)

	entry := decodeBody(t, w)
	assert.Contains(t, []string{"0", "42", "100"}, entry["progress"])
	assert.NotEqual(t, "Waiting...", entry["status"])

	close(srv.runner.release)
	final := <-done
	require.Equal(t, http.StatusOK, final.Code)
	assert.Equal(t, "abc123", decodeBody(t, final)["unique_id"])
}

func TestRouter_DownloadAudio(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.do(http.MethodPost, "/download_audio/song", `{"video_url":"https://example.com/a"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "song", body["unique_id"])
	assert.True(t, strings.HasSuffix(body["file_url"], "_clip.mp3"), body["file_url"])

	file := srv.do(http.MethodGet, body["file_url"], "")
	assert.Equal(t, http.StatusOK, file.Code)
}

func TestRouter_DownloadErrors(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantError  string
	}{
		{"get not allowed", http.MethodGet, "/download_video/x", "", http.StatusMethodNotAllowed, "Invalid request method"},
		{"options not allowed", http.MethodOptions, "/download_audio/x", "", http.StatusMethodNotAllowed, "Invalid request method"},
		{"put not allowed", http.MethodPut, "/download_video/x", `{"video_url":"u"}`, http.StatusMethodNotAllowed, "Invalid request method"},
		{"bad json", http.MethodPost, "/download_audio/x", "nope", http.StatusBadRequest, "Invalid JSON format"},
		{"missing url", http.MethodPost, "/download_video/x", `{}`, http.StatusBadRequest, "Missing video_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, w)["error"])
		})
	}
}

func TestRouter_DownloadTimeout(t *testing.T) {
	srv := newTestServer(t, "")
	srv.runner.err = domain.ErrDownloadTimeout

	w := srv.do(http.MethodPost, "/download_video/slow", `{"video_url":"https://example.com/v"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Download failed", decodeBody(t, w)["error"])

	progressResp := srv.do(http.MethodGet, "/progress/slow", "")
	assert.Equal(t, domain.StatusTimedOut, decodeBody(t, progressResp)["status"])
}

func TestRouter_ProgressDefaults(t *testing.T) {
	srv := newTestServer(t, "")

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := srv.do(method, "/progress/unknown", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"progress": "0", "status": "Waiting..."}, decodeBody(t, w))
	}
}

func TestRouter_MissingFile(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.do(http.MethodGet, "/downloads/innonothing.mp4", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AdminEndpointsRequireKey(t *testing.T) {
	srv := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/media", "").Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/stats", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/media", "", "X-API-Key", "secret").Code)

	// Public endpoints stay open.
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/progress/x", "").Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t, "")

	srv.do(http.MethodPost, "/download_video/m1", `{"video_url":"https://example.com/v"}`)

	w := srv.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `grabba_jobs_total{kind="video",outcome="succeeded"} 1`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.do(http.MethodOptions, "/download_video/x", "", "Origin", "https://app.example.com", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
