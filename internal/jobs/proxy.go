package jobs

import (
	"context"
	"errors"
	"fmt"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/logging"
)

// runProxy probes the original, derives the proxy geometry and renders the
// proxy. It returns the job status label.
func (d *Dispatcher) runProxy(ctx context.Context, assetID string) string {
	asset, err := d.store.GetAsset(ctx, assetID)
	if errors.Is(err, database.ErrNotFound) {
		logging.Info("Proxy job aborted: asset=%s no longer exists", assetID)
		return statusVanished
	}
	if err != nil {
		// The record may exist; there is nothing safe to write without it.
		logging.Error("Proxy job could not load asset=%s: %v", assetID, err)
		return statusFailed
	}
	if asset.Status.Terminal() {
		logging.Info("Proxy job skipped: asset=%s is already %s", assetID, asset.Status)
		return statusSkipped
	}

	outcome, err := d.store.UpdateAsset(ctx, assetID, func(a *database.Asset) error {
		a.Status = database.AssetProcessing
		return nil
	})
	if err != nil {
		if d.stopping() {
			return d.interrupted("asset", assetID)
		}
		d.failAsset(assetID, fmt.Sprintf("mark processing: %v", err))
		return statusFailed
	}
	if outcome == database.Vanished {
		logging.Info("Proxy job aborted: asset=%s vanished", assetID)
		return statusVanished
	}

	status, err := d.renderProxy(ctx, asset)
	if err != nil {
		if d.stopping() {
			return d.interrupted("asset", assetID)
		}
		d.failAsset(assetID, err.Error())
		return statusFailed
	}
	return status
}

func (d *Dispatcher) renderProxy(ctx context.Context, asset *database.Asset) (string, error) {
	src, err := d.layout.Path(asset.OriginalRef)
	if err != nil {
		return "", fmt.Errorf("resolve original: %w", err)
	}

	probe, err := d.prober.Probe(ctx, src)
	if err != nil {
		return "", err
	}

	width, height, err := d.policy.Derive(probe.Width, probe.Height)
	if err != nil {
		return "", fmt.Errorf("derive proxy geometry: %w", err)
	}
	logging.Debug("asset=%s source %dx%d %.3fs -> proxy %dx%d",
		asset.ID, probe.Width, probe.Height, probe.Duration, width, height)

	outcome, err := d.store.UpdateAsset(ctx, asset.ID, func(a *database.Asset) error {
		a.SourceWidth = probe.Width
		a.SourceHeight = probe.Height
		a.Width = width
		a.Height = height
		a.Duration = probe.Duration
		a.Framerate = probe.Framerate
		return nil
	})
	if err != nil {
		return "", err
	}
	if outcome == database.Vanished {
		logging.Info("Proxy job aborted after probe: asset=%s vanished", asset.ID)
		return statusVanished, nil
	}

	ref := filesystem.ProxyRef(asset.ID)
	dst, err := d.layout.Path(ref)
	if err != nil {
		return "", fmt.Errorf("resolve proxy destination: %w", err)
	}
	if err := d.invoker.RunProxyTranscode(ctx, src, width, height, dst); err != nil {
		return "", err
	}

	outcome, err = d.store.UpdateAsset(ctx, asset.ID, func(a *database.Asset) error {
		a.ProxyRef = ref
		a.Status = database.AssetCompleted
		return nil
	})
	if err != nil {
		d.discard(dst)
		return "", err
	}
	if outcome == database.Vanished {
		logging.Info("asset=%s vanished during transcode; discarding proxy", asset.ID)
		d.discard(dst)
		return statusVanished, nil
	}

	logging.Info("Proxy ready: asset=%s %dx%d", asset.ID, width, height)
	return statusCompleted, nil
}
