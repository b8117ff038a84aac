package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/metrics"
)

const (
	// DefaultMaxAge is how long media is kept when no retention window is configured.
	DefaultMaxAge = time.Hour
	// DefaultInterval is the time between scheduled sweeps.
	DefaultInterval = 10 * time.Minute
)

// ErrSweepRunning is returned when a sweep is requested while one is in progress.
var ErrSweepRunning = errors.New("sweep already running")

// Store is the record access a sweep needs.
type Store interface {
	ListExpiredClips(ctx context.Context, cutoff time.Time) ([]*database.Clip, error)
	ListExpiredAssets(ctx context.Context, cutoff time.Time) ([]*database.Asset, error)
	DeleteClip(ctx context.Context, id string) (database.Outcome, error)
	DeleteAsset(ctx context.Context, id string) (database.Outcome, error)
}

// Result summarizes one sweep.
type Result struct {
	FilesDeleted  int `json:"filesDeleted"`
	AssetsDeleted int `json:"assetsDeleted"`
	ClipsDeleted  int `json:"clipsDeleted"`
	Errors        int `json:"errors"`
}

// Sweeper deletes expired clips and assets together with their files.
type Sweeper struct {
	store  Store
	layout filesystem.Layout
	retry  filesystem.RetryConfig
	now    func() time.Time

	mu         sync.Mutex
	isSweeping bool
	lastSweep  time.Time
	lastResult Result
}

// New creates a Sweeper over store whose files live under layout.
func New(store Store, layout filesystem.Layout) *Sweeper {
	return &Sweeper{
		store:  store,
		layout: layout,
		retry:  filesystem.DefaultRetryConfig(),
		now:    time.Now,
	}
}

// LastSweep returns the time and result of the last completed sweep.
func (s *Sweeper) LastSweep() (time.Time, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep, s.lastResult
}

// Sweep deletes all clips and assets created more than maxAge ago. The
// returned error is non-nil only when the sweep could not run at all; per
// record failures are counted in Result.Errors.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) (Result, error) {
	if maxAge <= 0 {
		return Result{}, fmt.Errorf("retention window must be positive, got %v", maxAge)
	}

	s.mu.Lock()
	if s.isSweeping {
		s.mu.Unlock()
		return Result{}, ErrSweepRunning
	}
	s.isSweeping = true
	s.mu.Unlock()

	start := time.Now()
	cutoff := s.now().Add(-maxAge)
	var res Result

	err := s.sweepClips(ctx, cutoff, &res)
	if err == nil {
		err = s.sweepAssets(ctx, cutoff, &res)
	}

	elapsed := time.Since(start)
	metrics.SweepLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.SweepLastRunDuration.Set(elapsed.Seconds())
	metrics.SweepDeletedTotal.WithLabelValues("file").Add(float64(res.FilesDeleted))
	metrics.SweepDeletedTotal.WithLabelValues("clip").Add(float64(res.ClipsDeleted))
	metrics.SweepDeletedTotal.WithLabelValues("asset").Add(float64(res.AssetsDeleted))
	metrics.SweepErrorsTotal.Add(float64(res.Errors))

	s.mu.Lock()
	s.isSweeping = false
	if err == nil {
		s.lastSweep = start
		s.lastResult = res
	}
	s.mu.Unlock()

	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.SweepRunsTotal.WithLabelValues("success").Inc()

	if res.ClipsDeleted+res.AssetsDeleted+res.Errors > 0 {
		logging.Info("Retention sweep removed %d clips, %d assets, %d files (%d errors) in %v",
			res.ClipsDeleted, res.AssetsDeleted, res.FilesDeleted, res.Errors, elapsed)
	} else {
		logging.Debug("Retention sweep found nothing older than %v", maxAge)
	}
	return res, nil
}

func (s *Sweeper) sweepClips(ctx context.Context, cutoff time.Time, res *Result) error {
	clips, err := s.store.ListExpiredClips(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired clips: %w", err)
	}

	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			return err
		}
		refs := []string{clip.ClipRef, clip.ThumbnailRef, filesystem.ClipRef(clip.ID), filesystem.ThumbnailRef(clip.ID)}
		if !s.removeFiles("clip", clip.ID, refs, res) {
			continue
		}

		outcome, err := s.store.DeleteClip(ctx, clip.ID)
		if err != nil {
			logging.Error("Retention: failed to delete clip=%s: %v", clip.ID, err)
			res.Errors++
			continue
		}
		if outcome == database.Applied {
			res.ClipsDeleted++
		}
	}
	return nil
}

func (s *Sweeper) sweepAssets(ctx context.Context, cutoff time.Time, res *Result) error {
	assets, err := s.store.ListExpiredAssets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired assets: %w", err)
	}

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		refs := []string{asset.OriginalRef, asset.ProxyRef, filesystem.ProxyRef(asset.ID)}
		if !s.removeFiles("asset", asset.ID, refs, res) {
			continue
		}

		outcome, err := s.store.DeleteAsset(ctx, asset.ID)
		if err != nil {
			logging.Error("Retention: failed to delete asset=%s: %v", asset.ID, err)
			res.Errors++
			continue
		}
		if outcome == database.Applied {
			res.AssetsDeleted++
		}
	}
	return nil
}

// removeFiles deletes each distinct ref and reports whether the record may
// now be deleted.
func (s *Sweeper) removeFiles(kind, id string, refs []string, res *Result) bool {
	seen := make(map[string]bool, len(refs))
	ok := true
	for _, ref := range refs {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true

		path, err := s.layout.Path(ref)
		if err != nil {
			logging.Warn("Retention: %s=%s has unusable ref %q: %v", kind, id, ref, err)
			res.Errors++
			ok = false
			continue
		}
		removed, err := filesystem.RemoveIfExists(path, s.retry)
		if err != nil {
			logging.Error("Retention: failed to remove %s for %s=%s: %v", path, kind, id, err)
			res.Errors++
			ok = false
			continue
		}
		if removed {
			res.FilesDeleted++
		}
	}
	return ok
}

// Schedule runs a sweep every interval until ctx ends. A sweep that returns
// an error is logged and the schedule continues.
func Schedule(ctx context.Context, s *Sweeper, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	logging.Info("Starting retention sweeps (interval: %v, max age: %v)", interval, maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx, maxAge); err != nil && ctx.Err() == nil {
				logging.Error("Retention sweep failed: %v", err)
			}
		case <-ctx.Done():
			logging.Info("Retention sweeps stopped")
			return
		}
	}
}
