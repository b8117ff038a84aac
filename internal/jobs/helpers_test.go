package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/queue"
	"clipper/internal/transcoder"
)

type fakeProber struct {
	mu     sync.Mutex
	result *transcoder.ProbeResult
	err    error
	calls  []string
}

func (p *fakeProber) Probe(_ context.Context, sourcePath string) (*transcoder.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sourcePath)
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type proxyCall struct {
	src, dst      string
	width, height int
}

type clipCall struct {
	src, dst     string
	in, duration float64
}

// fakeInvoker writes a small output file for every successful call. The
// optional hooks run before the file is written and may replace the result.
type fakeInvoker struct {
	mu         sync.Mutex
	proxyCalls []proxyCall
	clipCalls  []clipCall
	proxyHook  func(ctx context.Context) error
	clipHook   func(ctx context.Context) error
}

func (f *fakeInvoker) RunProxyTranscode(ctx context.Context, src string, width, height int, dst string) error {
	f.mu.Lock()
	f.proxyCalls = append(f.proxyCalls, proxyCall{src: src, dst: dst, width: width, height: height})
	hook := f.proxyHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return writeOutput(dst, "proxydata")
}

func (f *fakeInvoker) RunClipTranscode(ctx context.Context, src string, in, duration float64, dst string) error {
	f.mu.Lock()
	f.clipCalls = append(f.clipCalls, clipCall{src: src, dst: dst, in: in, duration: duration})
	hook := f.clipHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return writeOutput(dst, "clipdata")
}

func (f *fakeInvoker) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.proxyCalls), len(f.clipCalls)
}

type fakeThumbnailer struct {
	err error
}

func (f *fakeThumbnailer) ClipPoster(_ context.Context, _ string, _ float64, dst string) error {
	if f.err != nil {
		return f.err
	}
	return writeOutput(dst, "png")
}

func writeOutput(dst, body string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(body), 0o644)
}

// flakyStore fails the first assetFailures UpdateAsset calls and the first
// clipFailures UpdateClip calls, then defers to the database.
type flakyStore struct {
	*database.Database

	mu            sync.Mutex
	assetFailures int
	clipFailures  int
}

var errDiskIO = errors.New("disk I/O error")

func (s *flakyStore) UpdateAsset(ctx context.Context, id string, fn func(*database.Asset) error) (database.Outcome, error) {
	s.mu.Lock()
	fail := s.assetFailures > 0
	if fail {
		s.assetFailures--
	}
	s.mu.Unlock()
	if fail {
		return database.Applied, errDiskIO
	}
	return s.Database.UpdateAsset(ctx, id, fn)
}

func (s *flakyStore) UpdateClip(ctx context.Context, id string, fn func(*database.Clip) error) (database.Outcome, error) {
	s.mu.Lock()
	fail := s.clipFailures > 0
	if fail {
		s.clipFailures--
	}
	s.mu.Unlock()
	if fail {
		return database.Applied, errDiskIO
	}
	return s.Database.UpdateClip(ctx, id, fn)
}

type harness struct {
	db       *database.Database
	layout   filesystem.Layout
	prober   *fakeProber
	invoker  *fakeInvoker
	thumbs   *fakeThumbnailer
	queue    *queue.Memory
	dispatch *Dispatcher
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
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

	h := &harness{
		db:      db,
		layout:  layout,
		prober:  &fakeProber{result: &transcoder.ProbeResult{Width: 1280, Height: 720, Duration: 12.5, Framerate: 30}},
		invoker: &fakeInvoker{},
		thumbs:  &fakeThumbnailer{},
		queue:   queue.NewMemory(16),
	}

	cfg := Config{
		Store:       db,
		Prober:      h.prober,
		Invoker:     h.invoker,
		Thumbnailer: h.thumbs,
		Queue:       h.queue,
		Layout:      layout,
		Policy:      transcoder.ScaleHalf(),
		Workers:     2,
		JobTimeout:  5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.dispatch, err = New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.dispatch.Shutdown(ctx)
	})
	return h
}

// uploadAsset creates an uploading asset with an original file on disk.
func (h *harness) uploadAsset(t *testing.T, id string) *database.Asset {
	t.Helper()

	ref := filesystem.UploadRef(id, "source.mov")
	path, err := h.layout.Path(ref)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if err := writeOutput(path, "original"); err != nil {
		t.Fatalf("Failed to write original: %v", err)
	}

	a := &database.Asset{ID: id, OriginalFilename: "source.mov", OriginalRef: ref, FileSize: 8}
	if err := h.db.CreateAsset(context.Background(), a); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	return a
}

func (h *harness) setAssetStatus(t *testing.T, id string, statuses ...database.AssetStatus) {
	t.Helper()
	for _, s := range statuses {
		_, err := h.db.UpdateAsset(context.Background(), id, func(a *database.Asset) error {
			a.Status = s
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAsset(%s) error = %v", s, err)
		}
	}
}

func (h *harness) createClip(t *testing.T, id, assetID string, in, out float64) *database.Clip {
	t.Helper()
	c := &database.Clip{ID: id, AssetID: assetID, Name: id, InPoint: in, OutPoint: out}
	if err := h.db.CreateClip(context.Background(), c); err != nil {
		t.Fatalf("CreateClip() error = %v", err)
	}
	return c
}

func (h *harness) asset(t *testing.T, id string) *database.Asset {
	t.Helper()
	a, err := h.db.GetAsset(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAsset(%s) error = %v", id, err)
	}
	return a
}

func (h *harness) clip(t *testing.T, id string) *database.Clip {
	t.Helper()
	c, err := h.db.GetClip(context.Background(), id)
	if err != nil {
		t.Fatalf("GetClip(%s) error = %v", id, err)
	}
	return c
}

func (h *harness) path(t *testing.T, ref string) string {
	t.Helper()
	p, err := h.layout.Path(ref)
	if err != nil {
		t.Fatalf("Path(%q) error = %v", ref, err)
	}
	return p
}

func proxyJob(assetID string) queue.Job {
	return queue.Job{Kind: queue.KindProxy, AssetID: assetID}
}

func clipJob(assetID, clipID string) queue.Job {
	return queue.Job{Kind: queue.KindClip, AssetID: assetID, ClipID: clipID}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
