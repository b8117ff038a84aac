package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"clipper/internal/database"
	"clipper/internal/logging"

	"github.com/gorilla/mux"
)

const (
	maxClipRequestBytes = 1 << 20
	maxClipsPerRequest  = 100
)

// ClipRequest is one clip in a CreateClips body.
type ClipRequest struct {
	Name     string  `json:"name"`
	InPoint  float64 `json:"in_point"`
	OutPoint float64 `json:"out_point"`
}

// CreateClipsRequest is the body of POST /api/assets/{id}/clips.
type CreateClipsRequest struct {
	Clips []ClipRequest `json:"clips"`
}

// CreateClipsResponse lists the created clip ids in request order.
type CreateClipsResponse struct {
	AssetID string   `json:"asset_id"`
	ClipIDs []string `json:"clip_ids"`
}

// CreateClipsFailure is returned when a batch fails part way. ClipIDs lists
// the clips recorded before the failure; their jobs are queued.
type CreateClipsFailure struct {
	Error   string   `json:"error"`
	AssetID string   `json:"asset_id"`
	ClipIDs []string `json:"clip_ids"`
}

// ClipResponse describes a clip to status pollers.
type ClipResponse struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Name         string  `json:"name"`
	InPoint      float64 `json:"in_point"`
	OutPoint     float64 `json:"out_point"`
	Status       string  `json:"status"`
	ClipURL      *string `json:"clip_url"`
	ThumbnailURL *string `json:"thumbnail_url"`
	FileSize     int64   `json:"file_size"`
	ErrorMessage string  `json:"error_message"`
}

// CreateClips validates the requested ranges, records one clip per range and
// queues their jobs. Ranges are checked against the probed duration once it
// is known; before that the clip job is the authority.
func (h *Handlers) CreateClips(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["id"]

	asset, ok := h.loadAsset(w, r, assetID)
	if !ok {
		return
	}

	var req CreateClipsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClipRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateClips(req.Clips, asset.Duration); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := CreateClipsResponse{AssetID: asset.ID, ClipIDs: make([]string, 0, len(req.Clips))}
	for i, c := range req.Clips {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = fmt.Sprintf("Clip %d", i+1)
		}
		clip := &database.Clip{
			AssetID:  asset.ID,
			Name:     name,
			InPoint:  c.InPoint,
			OutPoint: c.OutPoint,
			Status:   database.ClipProcessing,
		}
		if err := h.store.CreateClip(r.Context(), clip); err != nil {
			logging.Error("Failed to create clip %d of %d for asset=%s: %v", i+1, len(req.Clips), asset.ID, err)
			h.submitClips(asset.ID, resp.ClipIDs)
			writeJSONStatus(w, http.StatusInternalServerError, CreateClipsFailure{
				Error:   "Failed to create clips",
				AssetID: asset.ID,
				ClipIDs: resp.ClipIDs,
			})
			return
		}
		resp.ClipIDs = append(resp.ClipIDs, clip.ID)
	}

	h.submitClips(asset.ID, resp.ClipIDs)
	logging.Info("Created %d clip(s) for asset=%s", len(resp.ClipIDs), asset.ID)

	writeJSONStatus(w, http.StatusAccepted, resp)
}

func (h *Handlers) submitClips(assetID string, clipIDs []string) {
	for _, id := range clipIDs {
		h.jobs.SubmitClipJob(assetID, id)
	}
}

func validateClips(clips []ClipRequest, duration float64) error {
	if len(clips) == 0 {
		return errors.New("At least one clip is required")
	}
	if len(clips) > maxClipsPerRequest {
		return fmt.Errorf("At most %d clips may be requested at once", maxClipsPerRequest)
	}
	for i, c := range clips {
		n := i + 1
		if math.IsNaN(c.InPoint) || math.IsInf(c.InPoint, 0) || math.IsNaN(c.OutPoint) || math.IsInf(c.OutPoint, 0) {
			return fmt.Errorf("Clip %d: in_point and out_point must be finite", n)
		}
		if c.InPoint < 0 {
			return fmt.Errorf("Clip %d: in_point must not be negative", n)
		}
		if c.OutPoint <= c.InPoint {
			return fmt.Errorf("Clip %d: out_point must be greater than in_point", n)
		}
		if duration > 0 && c.OutPoint > duration {
			return fmt.Errorf("Clip %d: out_point exceeds the video duration of %.3fs", n, duration)
		}
	}
	return nil
}

// ListClips returns every clip of an asset, oldest first.
func (h *Handlers) ListClips(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}

	clips, err := h.store.ListClipsForAsset(r.Context(), asset.ID)
	if err != nil {
		logging.Error("Failed to list clips for asset=%s: %v", asset.ID, err)
		writeJSONError(w, "Failed to list clips", http.StatusInternalServerError)
		return
	}

	out := make([]ClipResponse, 0, len(clips))
	for _, c := range clips {
		out = append(out, h.clipResponse(c))
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, out)
}

// ClipStatus reports a clip's processing state.
func (h *Handlers) ClipStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	clip, err := h.store.GetClip(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Clip not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Status lookup failed for clip=%s: %v", id, err)
		writeJSONError(w, "Failed to load clip", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, h.clipResponse(clip))
}

func (h *Handlers) clipResponse(c *database.Clip) ClipResponse {
	return ClipResponse{
		ID:           c.ID,
		AssetID:      c.AssetID,
		Name:         c.Name,
		InPoint:      c.InPoint,
		OutPoint:     c.OutPoint,
		Status:       string(c.Status),
		ClipURL:      h.mediaURL(c.ClipRef),
		ThumbnailURL: h.mediaURL(c.ThumbnailRef),
		FileSize:     c.FileSize,
		ErrorMessage: c.ErrorDetail,
	}
}

func (h *Handlers) loadAsset(w http.ResponseWriter, r *http.Request, id string) (*database.Asset, bool) {
	asset, err := h.store.GetAsset(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Video not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logging.Error("Lookup failed for asset=%s: %v", id, err)
		writeJSONError(w, "Failed to load video", http.StatusInternalServerError)
		return nil, false
	}
	return asset, true
}
