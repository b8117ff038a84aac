package handlers

import (
	"context"
	"net/url"

	"clipper/internal/database"
	"clipper/internal/filesystem"
)

// Store is the record access the API needs.
type Store interface {
	CreateAsset(ctx context.Context, a *database.Asset) error
	GetAsset(ctx context.Context, id string) (*database.Asset, error)
	CreateClip(ctx context.Context, c *database.Clip) error
	GetClip(ctx context.Context, id string) (*database.Clip, error)
	ListClipsForAsset(ctx context.Context, assetID string) ([]*database.Clip, error)
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*database.Stats, error)
}

// Submitter queues background work. Submission never fails from the
// caller's point of view.
type Submitter interface {
	SubmitProxyJob(assetID string)
	SubmitClipJob(assetID, clipID string)
}

// QueueDepth reports how many jobs are waiting.
type QueueDepth interface {
	Len(ctx context.Context) (int, error)
}

// Config wires the handlers.
type Config struct {
	Store          Store
	Jobs           Submitter
	Queue          QueueDepth
	Layout         filesystem.Layout
	PublicBaseURL  string
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 2 << 30

type Handlers struct {
	store          Store
	jobs           Submitter
	queue          QueueDepth
	layout         filesystem.Layout
	baseURL        string
	maxUploadBytes int64
}

func New(cfg Config) *Handlers {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handlers{
		store:          cfg.Store,
		jobs:           cfg.Jobs,
		queue:          cfg.Queue,
		layout:         cfg.Layout,
		baseURL:        cfg.PublicBaseURL,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// mediaURL returns the public URL of a stored ref, or nil for an empty ref.
func (h *Handlers) mediaURL(ref string) *string {
	if ref == "" {
		return nil
	}
	u := h.baseURL + (&url.URL{Path: "/media/" + ref}).EscapedPath()
	return &u
}
