package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/metrics"
)

// PosterScale is the poster size relative to the source frame.
const PosterScale = 0.25

// ErrThumbnailsDisabled is returned by ClipPoster when posters are turned off.
var ErrThumbnailsDisabled = errors.New("thumbnails disabled")

// FrameExtractor writes a single frame of src at offset at to dst as PNG.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, src string, at float64, dst string) error
}

// Thumbnailer renders clip posters.
type Thumbnailer struct {
	frames  FrameExtractor
	enabled bool
}

// NewThumbnailer creates a Thumbnailer.
func NewThumbnailer(frames FrameExtractor, enabled bool) *Thumbnailer {
	if enabled {
		logging.Debug("Thumbnailer: enabled, poster scale %.2f", PosterScale)
	} else {
		logging.Debug("Thumbnailer: disabled")
	}
	return &Thumbnailer{frames: frames, enabled: enabled}
}

func (t *Thumbnailer) IsEnabled() bool {
	return t != nil && t.enabled && t.frames != nil
}

// ClipPoster grabs the frame at offset at from src and writes a scaled PNG
// poster to dst. dst is only written once the poster is fully encoded.
func (t *Thumbnailer) ClipPoster(ctx context.Context, src string, at float64, dst string) (err error) {
	if !t.IsEnabled() {
		return ErrThumbnailsDisabled
	}

	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.ThumbnailsTotal.WithLabelValues(result).Inc()
	}()

	if err := filesystem.EnsureDir(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}

	frame := dst + ".frame.png"
	defer func() {
		if rmErr := os.Remove(frame); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove frame %s: %v", frame, rmErr)
		}
	}()

	if err := t.frames.ExtractFrame(ctx, src, at, frame); err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	bounds := img.Bounds()
	w, h := PosterSize(bounds.Dx(), bounds.Dy())
	poster := imaging.Resize(img, w, h, imaging.Lanczos)

	tmp := dst + ".tmp.png"
	if err := imaging.Save(poster, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("encode poster: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store poster: %w", err)
	}

	logging.Debug("Poster generated: %s (%dx%d)", dst, w, h)
	return nil
}

// PosterSize scales a frame size by PosterScale, never below 1px per axis.
func PosterSize(width, height int) (int, int) {
	w := int(math.Round(float64(width) * PosterScale))
	h := int(math.Round(float64(height) * PosterScale))
	return max(w, 1), max(h, 1)
}
