package filesystem

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
)

// readFileRequest mirrors internal/adapter/connector's wire shape for the
// READ_FILE contract.
type readFileRequest struct {
	Location string `json:"location"`
	Metainfo string `json:"metainfo,omitempty"`
}

// Handler implements the READ_FILE HTTP contract against Config.RootDir.
type Handler struct {
	Config Config
	Logger *slog.Logger
}

// NewHandler constructs a Handler bound to cfg.
func NewHandler(cfg Config, logger *slog.Logger) *Handler {
	return &Handler{Config: cfg, Logger: logger}
}

// ServeHTTP serves POST /READ_FILE: decode the JSON body, resolve and open
// the file, sniff its MIME type for the Content-Type response header, and
// stream the bytes with Content-Length set so the dsx-connect worker's
// connector client can size the stream up front.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req readFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Location == "" {
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	}

	path, err := h.Config.ResolvePath(req.Location)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("filesystem connector: open failed", "location", req.Location, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.Logger.Error("filesystem connector: stat failed", "location", req.Location, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if h.Config.MaxReadBytes > 0 && info.Size() > h.Config.MaxReadBytes {
		http.Error(w, "file exceeds connector max read size", http.StatusRequestEntityTooLarge)
		return
	}

	mtype, err := mimetype.DetectFile(path)
	if err == nil {
		w.Header().Set("Content-Type", mtype.String())
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.Logger.Warn("filesystem connector: stream interrupted", "location", req.Location, "err", err)
	}
}
