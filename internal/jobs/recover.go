package jobs

import (
	"context"
	"errors"
	"fmt"

	"clipper/internal/database"
	"clipper/internal/logging"
)

// interruptedDetail is recorded on assets whose proxy job was running when
// the process stopped.
const interruptedDetail = "interrupted by restart"

// Recover resubmits work left behind by a previous process. Assets caught
// mid-transcode are marked failed first; assets still uploading and clips
// still processing are then queued again. Assets owned by a job of this
// process are left alone.
func (d *Dispatcher) Recover(ctx context.Context) error {
	var errs []error

	processing, err := d.store.ListAssetsByStatus(ctx, database.AssetProcessing)
	if err != nil {
		errs = append(errs, fmt.Errorf("list processing assets: %w", err))
	}
	interrupted := 0
	for _, asset := range processing {
		if d.owns("asset:" + asset.ID) {
			continue
		}
		outcome, err := d.store.UpdateAsset(ctx, asset.ID, func(a *database.Asset) error {
			a.Status = database.AssetFailed
			a.ErrorDetail = interruptedDetail
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("fail interrupted asset %s: %w", asset.ID, err))
			continue
		}
		if outcome == database.Applied {
			interrupted++
		}
	}

	uploading, err := d.store.ListAssetsByStatus(ctx, database.AssetUploading)
	if err != nil {
		errs = append(errs, fmt.Errorf("list uploading assets: %w", err))
	}
	for _, asset := range uploading {
		d.SubmitProxyJob(asset.ID)
	}

	clips, err := d.store.ListClipsByStatus(ctx, database.ClipProcessing)
	if err != nil {
		errs = append(errs, fmt.Errorf("list processing clips: %w", err))
	}
	for _, clip := range clips {
		if d.owns("clip:" + clip.ID) {
			continue
		}
		d.SubmitClipJob(clip.AssetID, clip.ID)
	}

	if interrupted+len(uploading)+len(clips) > 0 {
		logging.Info("Recovered pending work: %d interrupted assets failed, %d proxy jobs and %d clip jobs resubmitted",
			interrupted, len(uploading), len(clips))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) owns(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}
