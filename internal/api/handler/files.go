package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// FileHandler serves downloaded files from a blob bucket.
type FileHandler struct {
	bucket *blob.Bucket
	route  string
	marker string
	logger *slog.Logger
}

// NewFileHandler creates a file handler for public URLs of the form
// publicPrefix+name, e.g. "/downloads/inno" + "9999_clip.mp4". The last
// path element of publicPrefix is a marker removed before lookup.
func NewFileHandler(bucket *blob.Bucket, publicPrefix string, logger *slog.Logger) *FileHandler {
	dir, marker := path.Split(publicPrefix)
	if dir == "" {
		dir = "/"
	}
	return &FileHandler{
		bucket: bucket,
		route:  dir + "{file}",
		marker: marker,
		logger: logger,
	}
}

// Pattern is the chi route pattern the handler serves.
func (h *FileHandler) Pattern() string {
	return h.route
}

// Serve handles GET /downloads/{file}
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(chi.URLParam(r, "file"), h.marker)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		h.writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	reader, err := h.bucket.NewReader(r.Context(), name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			h.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("open file failed", "file", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer reader.Close()

	contentType := reader.ContentType()
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(reader.Size(), 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("file transfer interrupted", "file", name, "error", err)
	}
}

func (h *FileHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
