package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/grabba-media/internal/api/handler"
	mw "github.com/iconidentify/grabba-media/internal/api/middleware"
	"github.com/iconidentify/grabba-media/internal/config"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	cfg config.ServerConfig,
	downloadHandler *handler.DownloadHandler,
	fileHandler *handler.FileHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)    // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.StripSlashes) // /progress/abc/ -> /progress/abc
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(mw.CORS)

	// Health endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", metricsHandler)

	// Download endpoints accept every method so the handler can answer
	// non-POST requests itself.
	r.HandleFunc("/download_video/{jobID}", downloadHandler.DownloadVideo)
	r.HandleFunc("/download_audio/{jobID}", downloadHandler.DownloadAudio)
	r.HandleFunc("/progress/{jobID}", downloadHandler.Progress)

	r.Get(fileHandler.Pattern(), fileHandler.Serve)

	// Admin endpoints, optionally behind an API key
	r.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))
		r.Get("/media", downloadHandler.ListMedia)
		r.Get("/stats", healthHandler.Stats)
	})

	return r
}
