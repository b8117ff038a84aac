package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
)

type fixture struct {
	db     *database.Database
	layout filesystem.Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "retention.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	layout, err := filesystem.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout() error = %v", err)
	}
	if err := layout.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	return &fixture{db: db, layout: layout}
}

func (f *fixture) touch(t *testing.T, ref string) string {
	t.Helper()
	path, err := f.layout.Path(ref)
	if err != nil {
		t.Fatalf("Path(%q) error = %v", ref, err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func (f *fixture) asset(t *testing.T, id string, age time.Duration) (*database.Asset, []string) {
	t.Helper()
	a := &database.Asset{
		ID:          id,
		OriginalRef: filesystem.UploadRef(id, "in.mp4"),
		ProxyRef:    filesystem.ProxyRef(id),
		Status:      database.AssetCompleted,
		CreatedAt:   time.Now().Add(-age),
	}
	files := []string{f.touch(t, a.OriginalRef), f.touch(t, a.ProxyRef)}
	if err := f.db.CreateAsset(context.Background(), a); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	return a, files
}

func (f *fixture) clip(t *testing.T, id, assetID string, age time.Duration) (*database.Clip, []string) {
	t.Helper()
	c := &database.Clip{
		ID:           id,
		AssetID:      assetID,
		InPoint:      0,
		OutPoint:     1,
		ClipRef:      filesystem.ClipRef(id),
		ThumbnailRef: filesystem.ThumbnailRef(id),
		Status:       database.ClipCompleted,
		CreatedAt:    time.Now().Add(-age),
	}
	files := []string{f.touch(t, c.ClipRef), f.touch(t, c.ThumbnailRef)}
	if err := f.db.CreateClip(context.Background(), c); err != nil {
		t.Fatalf("CreateClip() error = %v", err)
	}
	return c, files
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweepRemovesExpiredMedia(t *testing.T) {
	f := newFixture(t)
	_, oldAssetFiles := f.asset(t, "old", 2*time.Hour)
	_, freshAssetFiles := f.asset(t, "fresh", time.Minute)
	_, oldClipFiles := f.clip(t, "old-clip", "fresh", 2*time.Hour)
	_, freshClipFiles := f.clip(t, "fresh-clip", "old", time.Minute)

	s := New(f.db, f.layout)
	res, err := s.Sweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	want := Result{FilesDeleted: 4, AssetsDeleted: 1, ClipsDeleted: 1}
	if res != want {
		t.Errorf("Sweep() = %+v, want %+v", res, want)
	}
	for _, p := range append(oldAssetFiles, oldClipFiles...) {
		if exists(p) {
			t.Errorf("%s survived the sweep", p)
		}
	}
	for _, p := range append(freshAssetFiles, freshClipFiles...) {
		if !exists(p) {
			t.Errorf("%s was removed but is not expired", p)
		}
	}

	ctx := context.Background()
	if _, err := f.db.GetAsset(ctx, "old"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetAsset(old) error = %v, want ErrNotFound", err)
	}
	if _, err := f.db.GetClip(ctx, "old-clip"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetClip(old-clip) error = %v, want ErrNotFound", err)
	}
	if _, err := f.db.GetClip(ctx, "fresh-clip"); err != nil {
		t.Errorf("fresh clip of an expired asset was removed: %v", err)
	}

	when, last := s.LastSweep()
	if when.IsZero() || last != want {
		t.Errorf("LastSweep() = %v %+v", when, last)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.asset(t, "old", 2*time.Hour)
	f.clip(t, "old-clip", "old", 2*time.Hour)

	s := New(f.db, f.layout)
	if _, err := s.Sweep(context.Background(), time.Hour); err != nil {
		t.Fatalf("first Sweep() error = %v", err)
	}
	res, err := s.Sweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if res != (Result{}) {
		t.Errorf("second Sweep() = %+v, want zero", res)
	}
}

func TestSweepToleratesMissingFiles(t *testing.T) {
	f := newFixture(t)
	_, files := f.asset(t, "old", 2*time.Hour)
	for _, p := range files {
		if err := os.Remove(p); err != nil {
			t.Fatal(err)
		}
	}

	res, err := New(f.db, f.layout).Sweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.AssetsDeleted != 1 || res.FilesDeleted != 0 || res.Errors != 0 {
		t.Errorf("Sweep() = %+v, want one asset and no files", res)
	}
}

func TestSweepKeepsRecordWhenRefIsUnusable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := &database.Asset{ID: "bad", OriginalRef: "../outside.mp4", CreatedAt: time.Now().Add(-2 * time.Hour)}
	if err := f.db.CreateAsset(ctx, bad); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	f.asset(t, "good", 2*time.Hour)

	res, err := New(f.db, f.layout).Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Errors != 1 || res.AssetsDeleted != 1 {
		t.Errorf("Sweep() = %+v, want 1 error and 1 asset deleted", res)
	}
	if _, err := f.db.GetAsset(ctx, "bad"); err != nil {
		t.Errorf("asset with unusable ref was deleted: %v", err)
	}
}

type failingStore struct {
	Store
	deleteClipErr error
}

func (s *failingStore) DeleteClip(ctx context.Context, id string) (database.Outcome, error) {
	if s.deleteClipErr != nil {
		return database.Applied, s.deleteClipErr
	}
	return s.Store.DeleteClip(ctx, id)
}

func TestSweepContinuesAfterRecordFailure(t *testing.T) {
	f := newFixture(t)
	f.clip(t, "c1", "a1", 2*time.Hour)
	f.asset(t, "a1", 2*time.Hour)

	store := &failingStore{Store: f.db, deleteClipErr: errors.New("disk I/O error")}
	res, err := New(store, f.layout).Sweep(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Errors != 1 || res.ClipsDeleted != 0 || res.AssetsDeleted != 1 {
		t.Errorf("Sweep() = %+v, want the asset swept despite the clip failure", res)
	}
}

type listErrStore struct {
	Store
}

func (listErrStore) ListExpiredClips(context.Context, time.Time) ([]*database.Clip, error) {
	return nil, errors.New("database is locked")
}

func TestSweepFailsWhenListingFails(t *testing.T) {
	f := newFixture(t)
	if _, err := New(listErrStore{Store: f.db}, f.layout).Sweep(context.Background(), time.Hour); err == nil {
		t.Error("Sweep() expected error")
	}
}

func TestSweepRejectsNonPositiveMaxAge(t *testing.T) {
	f := newFixture(t)
	for _, age := range []time.Duration{0, -time.Second} {
		if _, err := New(f.db, f.layout).Sweep(context.Background(), age); err == nil {
			t.Errorf("Sweep(%v) expected error", age)
		}
	}
}

func TestSweepRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	s := New(f.db, f.layout)
	s.isSweeping = true

	if _, err := s.Sweep(context.Background(), time.Hour); !errors.Is(err, ErrSweepRunning) {
		t.Errorf("Sweep() error = %v, want ErrSweepRunning", err)
	}
}

func TestScheduleRunsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.asset(t, "old", 2*time.Hour)
	s := New(f.db, f.layout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Schedule(ctx, s, 20*time.Millisecond, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if when, _ := s.LastSweep(); !when.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no scheduled sweep ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}

	if _, err := f.db.GetAsset(context.Background(), "old"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("scheduled sweep left the expired asset: %v", err)
	}
}
