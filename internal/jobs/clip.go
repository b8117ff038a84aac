package jobs

import (
	"context"
	"errors"
	"fmt"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/media"
	"clipper/internal/queue"
	"clipper/internal/transcoder"
)

// runClip cuts the clip window out of the asset's original upload.
func (d *Dispatcher) runClip(ctx context.Context, job queue.Job) string {
	clip, err := d.store.GetClip(ctx, job.ClipID)
	if errors.Is(err, database.ErrNotFound) {
		logging.Info("Clip job aborted: clip=%s no longer exists", job.ClipID)
		return statusVanished
	}
	if err != nil {
		logging.Error("Clip job could not load clip=%s: %v", job.ClipID, err)
		return statusFailed
	}
	if clip.Status.Terminal() {
		logging.Info("Clip job skipped: clip=%s is already %s", clip.ID, clip.Status)
		return statusSkipped
	}

	asset, err := d.store.GetAsset(ctx, clip.AssetID)
	if errors.Is(err, database.ErrNotFound) {
		d.failClip(clip.ID, "asset not found")
		return statusFailed
	}
	if err != nil {
		d.failClip(clip.ID, fmt.Sprintf("load asset %s: %v", clip.AssetID, err))
		return statusFailed
	}

	// Clips are written with status processing; this re-asserts it and
	// detects a delete that raced the job start.
	outcome, err := d.store.UpdateClip(ctx, clip.ID, func(c *database.Clip) error {
		c.Status = database.ClipProcessing
		return nil
	})
	if err != nil {
		if d.stopping() {
			return d.interrupted("clip", clip.ID)
		}
		d.failClip(clip.ID, fmt.Sprintf("mark processing: %v", err))
		return statusFailed
	}
	if outcome == database.Vanished {
		logging.Info("Clip job aborted: clip=%s vanished", clip.ID)
		return statusVanished
	}

	status, err := d.renderClip(ctx, clip, asset)
	if err != nil {
		if d.stopping() {
			return d.interrupted("clip", clip.ID)
		}
		d.failClip(clip.ID, err.Error())
		return statusFailed
	}
	return status
}

func (d *Dispatcher) renderClip(ctx context.Context, clip *database.Clip, asset *database.Asset) (string, error) {
	duration, err := transcoder.DeriveClipWindow(clip.InPoint, clip.OutPoint)
	if err != nil {
		return "", err
	}

	src, err := d.layout.Path(asset.OriginalRef)
	if err != nil {
		return "", fmt.Errorf("resolve original: %w", err)
	}
	ref := filesystem.ClipRef(clip.ID)
	dst, err := d.layout.Path(ref)
	if err != nil {
		return "", fmt.Errorf("resolve clip destination: %w", err)
	}

	if err := d.invoker.RunClipTranscode(ctx, src, clip.InPoint, duration, dst); err != nil {
		return "", err
	}

	info, err := filesystem.StatWithRetry(dst, filesystem.DefaultRetryConfig())
	if err != nil {
		d.discard(dst)
		return "", fmt.Errorf("stat clip output: %w", err)
	}

	thumbRef, thumbPath := d.renderPoster(ctx, clip, src)

	outcome, err := d.store.UpdateClip(ctx, clip.ID, func(c *database.Clip) error {
		c.ClipRef = ref
		c.ThumbnailRef = thumbRef
		c.FileSize = info.Size()
		c.Status = database.ClipCompleted
		return nil
	})
	if err != nil {
		d.discard(dst, thumbPath)
		return "", err
	}
	if outcome == database.Vanished {
		logging.Info("clip=%s vanished during transcode; discarding output", clip.ID)
		d.discard(dst, thumbPath)
		return statusVanished, nil
	}

	logging.Info("Clip ready: clip=%s asset=%s %.3fs (%d bytes)", clip.ID, asset.ID, duration, info.Size())
	return statusCompleted, nil
}

// renderPoster returns the thumbnail ref and path, or empty strings when no
// poster was produced. A poster failure never fails the clip.
func (d *Dispatcher) renderPoster(ctx context.Context, clip *database.Clip, src string) (string, string) {
	if d.thumbnailer == nil {
		return "", ""
	}
	ref := filesystem.ThumbnailRef(clip.ID)
	dst, err := d.layout.Path(ref)
	if err != nil {
		logging.Warn("Poster skipped for clip=%s: %v", clip.ID, err)
		return "", ""
	}
	if err := d.thumbnailer.ClipPoster(ctx, src, clip.InPoint, dst); err != nil {
		if errors.Is(err, media.ErrThumbnailsDisabled) {
			return "", ""
		}
		logging.Warn("Poster failed for clip=%s: %v", clip.ID, err)
		return "", ""
	}
	return ref, dst
}
