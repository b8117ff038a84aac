package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// uploadFormField is the multipart field carrying the video.
const uploadFormField = "video"

// UploadResponse is returned by UploadVideo.
type UploadResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse describes an asset to status pollers.
type StatusResponse struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	OriginalFilename string  `json:"original_filename"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Duration         float64 `json:"duration"`
	ProxyURL         *string `json:"proxy_url"`
	ErrorMessage     string  `json:"error_message"`
}

// UploadVideo stores the uploaded original, creates its asset and queues the
// proxy job. The request body is streamed straight to disk.
func (h *Handlers) UploadVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, "Expected a multipart/form-data upload", http.StatusBadRequest)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.uploadFailed(w, r, err)
			return
		}
		if part.FormName() != uploadFormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		asset, err := h.storeUpload(r.Context(), part)
		_ = part.Close()
		if err != nil {
			h.uploadFailed(w, r, err)
			return
		}

		h.jobs.SubmitProxyJob(asset.ID)
		logging.Info("Upload stored: asset=%s %q (%d bytes)", asset.ID, asset.OriginalFilename, asset.FileSize)

		writeJSONStatus(w, http.StatusOK, UploadResponse{
			VideoID: asset.ID,
			Status:  "uploaded",
			Message: "Video uploaded successfully, creating proxy...",
		})
		return
	}

	writeJSONError(w, "No video file provided", http.StatusBadRequest)
}

func (h *Handlers) storeUpload(ctx context.Context, part *multipart.Part) (*database.Asset, error) {
	id := uuid.NewString()
	ref := filesystem.UploadRef(id, part.FileName())
	path, err := h.layout.Path(ref)
	if err != nil {
		return nil, err
	}
	if err := filesystem.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}

	tmp := path + ".part"
	size, err := writeFile(tmp, part)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	asset := &database.Asset{
		ID:               id,
		OriginalFilename: part.FileName(),
		OriginalRef:      ref,
		FileSize:         size,
		Status:           database.AssetUploading,
	}
	if err := h.store.CreateAsset(ctx, asset); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return asset, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (h *Handlers) uploadFailed(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, fmt.Sprintf("Upload exceeds the %d byte limit", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	logging.Error("Upload failed (request %s): %v", middleware.GetRequestID(r.Context()), err)
	writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
}

// VideoStatus reports an asset's processing state.
func (h *Handlers) VideoStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	asset, err := h.store.GetAsset(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Status lookup failed for asset=%s: %v", id, err)
		writeJSONError(w, "Failed to load video", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, h.statusResponse(asset))
}

func (h *Handlers) statusResponse(a *database.Asset) StatusResponse {
	return StatusResponse{
		ID:               a.ID,
		Status:           string(a.Status),
		OriginalFilename: a.OriginalFilename,
		Width:            a.Width,
		Height:           a.Height,
		Duration:         a.Duration,
		ProxyURL:         h.mediaURL(a.ProxyRef),
		ErrorMessage:     a.ErrorDetail,
	}
}
