package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/logging"
	"clipper/internal/metrics"
	"clipper/internal/queue"
	"clipper/internal/transcoder"
	"clipper/internal/workers"
)

// Store is the record access the pipelines need.
type Store interface {
	GetAsset(ctx context.Context, id string) (*database.Asset, error)
	GetClip(ctx context.Context, id string) (*database.Clip, error)
	UpdateAsset(ctx context.Context, id string, fn func(*database.Asset) error) (database.Outcome, error)
	UpdateClip(ctx context.Context, id string, fn func(*database.Clip) error) (database.Outcome, error)
	ListAssetsByStatus(ctx context.Context, statuses ...database.AssetStatus) ([]*database.Asset, error)
	ListClipsByStatus(ctx context.Context, statuses ...database.ClipStatus) ([]*database.Clip, error)
}

// Prober reads source metadata.
type Prober interface {
	Probe(ctx context.Context, sourcePath string) (*transcoder.ProbeResult, error)
}

// Invoker runs the transcoding engine.
type Invoker interface {
	RunProxyTranscode(ctx context.Context, src string, width, height int, dst string) error
	RunClipTranscode(ctx context.Context, src string, in, duration float64, dst string) error
}

// Thumbnailer renders clip posters.
type Thumbnailer interface {
	ClipPoster(ctx context.Context, src string, at float64, dst string) error
}

// Gate holds workers back before they take the next job.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config wires a Dispatcher. Store, Prober and Invoker are required;
// Thumbnailer and Gate are optional. RecoverPending resubmits interrupted
// work when the dispatcher starts. SubmitTimeout bounds how long a submit
// waits for queue room before the job's record is marked failed.
type Config struct {
	Store          Store
	Prober         Prober
	Invoker        Invoker
	Thumbnailer    Thumbnailer
	Queue          queue.Queue
	Gate           Gate
	Layout         filesystem.Layout
	Policy         transcoder.ScalePolicy
	Workers        int
	JobTimeout     time.Duration
	SubmitTimeout  time.Duration
	RecoverPending bool
}

const (
	defaultJobTimeout    = 45 * time.Minute
	defaultSubmitTimeout = 5 * time.Second
	// failureWriteTimeout bounds the terminal write made after a job's own
	// context has expired.
	failureWriteTimeout = 10 * time.Second
	popRetryDelay       = time.Second
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusVanished  = "vanished"
	statusSkipped   = "skipped"
	statusDuplicate = "duplicate"
	// statusInterrupted marks jobs cut short by Shutdown. Their records are
	// left non-terminal for Recover.
	statusInterrupted = "interrupted"
)

// Dispatcher runs proxy and clip jobs on a worker pool.
type Dispatcher struct {
	store         Store
	prober        Prober
	invoker       Invoker
	thumbnailer   Thumbnailer
	queue         queue.Queue
	gate          Gate
	layout        filesystem.Layout
	policy        transcoder.ScalePolicy
	workers       int
	jobTimeout    time.Duration
	submitTimeout time.Duration
	recovers      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
	started  bool
}

// New creates a Dispatcher. Workers defaults to workers.ForMixed(4), the
// queue to an in-memory queue, JobTimeout to 45 minutes and SubmitTimeout to
// 5 seconds.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil || cfg.Prober == nil || cfg.Invoker == nil {
		return nil, errors.New("jobs: store, prober and invoker are required")
	}
	if strings.TrimSpace(cfg.Layout.Root) == "" {
		return nil, errors.New("jobs: media layout root is required")
	}
	if cfg.Queue == nil {
		cfg.Queue = queue.NewMemory(0)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForMixed(4)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:         cfg.Store,
		prober:        cfg.Prober,
		invoker:       cfg.Invoker,
		thumbnailer:   cfg.Thumbnailer,
		queue:         cfg.Queue,
		gate:          cfg.Gate,
		layout:        cfg.Layout,
		policy:        cfg.Policy,
		workers:       cfg.Workers,
		jobTimeout:    cfg.JobTimeout,
		submitTimeout: cfg.SubmitTimeout,
		recovers:      cfg.RecoverPending,
		ctx:           ctx,
		cancel:        cancel,
		inFlight:      make(map[string]struct{}),
	}, nil
}

// Workers returns the size of the worker pool.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Start launches the worker pool. Calling it again has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	logging.Info("Starting job dispatcher with %d workers (job timeout %v, scale policy %s)",
		d.workers, d.jobTimeout, d.policy)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	if d.recovers {
		go func() {
			if err := d.Recover(d.ctx); err != nil && d.ctx.Err() == nil {
				logging.Error("Job recovery failed: %v", err)
			}
		}()
	}
}

// Shutdown stops the workers and waits for running jobs to return, or for
// ctx to end. Running engine processes see their context cancelled, and the
// jobs they served leave their records as they were for Recover to pick up on
// the next start, the same as after a crash.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Job dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitProxyJob queues proxy generation for an asset.
func (d *Dispatcher) SubmitProxyJob(assetID string) {
	d.submit(queue.Job{Kind: queue.KindProxy, AssetID: assetID, SubmittedAt: time.Now().UTC()})
}

// SubmitClipJob queues extraction of a clip cut from an asset.
func (d *Dispatcher) SubmitClipJob(assetID, clipID string) {
	d.submit(queue.Job{Kind: queue.KindClip, AssetID: assetID, ClipID: clipID, SubmittedAt: time.Now().UTC()})
}

func (d *Dispatcher) submit(job queue.Job) {
	kind := string(job.Kind)
	if err := job.Validate(); err != nil {
		logging.Warn("Rejected %s job submission: %v", kind, err)
		metrics.JobSubmitFailures.WithLabelValues(kind).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.submitTimeout)
	defer cancel()

	if err := d.queue.Push(ctx, job); err != nil {
		metrics.JobSubmitFailures.WithLabelValues(kind).Inc()
		if d.stopping() || errors.Is(err, queue.ErrClosed) {
			logging.Warn("Could not submit %s job %s during shutdown: %v", kind, job.Key(), err)
			return
		}
		logging.Error("Failed to submit %s job %s: %v", kind, job.Key(), err)
		d.reject(job, err)
		return
	}
	metrics.JobsSubmittedTotal.WithLabelValues(kind).Inc()
	logging.Debug("Submitted %s job %s", kind, job.Key())
}

// reject marks the record of a job that could not be queued as failed, unless
// a running job already owns it.
func (d *Dispatcher) reject(job queue.Job, err error) {
	if d.owns(job.Key()) {
		logging.Info("Not failing %s: a running job owns it", job.Key())
		return
	}
	detail := "could not queue job: " + err.Error()
	if job.Kind == queue.KindClip {
		d.failClip(job.ClipID, detail)
	} else {
		d.failAsset(job.AssetID, detail)
	}
}

// stopping reports whether Shutdown has been called.
func (d *Dispatcher) stopping() bool {
	return d.ctx.Err() != nil
}

// interrupted leaves a record mid-flight for Recover and returns the status
// label for a job cut short by Shutdown.
func (d *Dispatcher) interrupted(kind, id string) string {
	logging.Info("%s=%s interrupted by shutdown; left for recovery", kind, id)
	return statusInterrupted
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		if d.gate != nil {
			if err := d.gate.Wait(d.ctx); err != nil {
				return
			}
		}
		job, err := d.queue.Pop(d.ctx)
		if err != nil {
			if d.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logging.Warn("Job queue pop failed: %v", err)
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}
		d.run(job)
	}
}

func (d *Dispatcher) run(job queue.Job) {
	kind := string(job.Kind)
	if err := job.Validate(); err != nil {
		logging.Warn("Discarding invalid job descriptor: %v", err)
		return
	}

	key := job.Key()
	if !d.beginWork(key) {
		logging.Warn("Dropping %s job for %s: already running", kind, key)
		metrics.JobsTotal.WithLabelValues(kind, statusDuplicate).Inc()
		return
	}
	defer d.finishWork(key)

	metrics.JobsInProgress.WithLabelValues(kind).Inc()
	defer metrics.JobsInProgress.WithLabelValues(kind).Dec()

	start := time.Now()
	ctx, cancel := context.WithTimeout(d.ctx, d.jobTimeout)
	defer cancel()

	status := d.execute(ctx, job)

	metrics.JobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.JobsTotal.WithLabelValues(kind, status).Inc()
	logging.Debug("%s job %s finished: %s in %v", kind, key, status, time.Since(start))
}

func (d *Dispatcher) execute(ctx context.Context, job queue.Job) (status string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic in %s job %s: %v\n%s", job.Kind, job.Key(), r, debug.Stack())
			detail := fmt.Sprintf("internal error: %v", r)
			if job.Kind == queue.KindClip {
				d.failClip(job.ClipID, detail)
			} else {
				d.failAsset(job.AssetID, detail)
			}
			status = statusFailed
		}
	}()

	if job.Kind == queue.KindClip {
		return d.runClip(ctx, job)
	}
	return d.runProxy(ctx, job.AssetID)
}

func (d *Dispatcher) beginWork(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inFlight[key]; exists {
		return false
	}
	d.inFlight[key] = struct{}{}
	return true
}

func (d *Dispatcher) finishWork(key string) {
	d.mu.Lock()
	delete(d.inFlight, key)
	d.mu.Unlock()
}

// failAsset records a terminal failure. Errors here are only logged; there is
// nobody left to report them to. An asset still uploading is moved through
// processing first, since failed is only reachable from there.
func (d *Dispatcher) failAsset(id, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	markFailed := func(a *database.Asset) error {
		a.Status = database.AssetFailed
		a.ErrorDetail = detail
		return nil
	}
	outcome, err := d.store.UpdateAsset(ctx, id, markFailed)
	if errors.Is(err, database.ErrInvalidTransition) {
		outcome, err = d.store.UpdateAsset(ctx, id, func(a *database.Asset) error {
			if a.Status != database.AssetUploading {
				return fmt.Errorf("asset is %s: %w", a.Status, database.ErrInvalidTransition)
			}
			a.Status = database.AssetProcessing
			return nil
		})
		if err == nil && outcome == database.Applied {
			outcome, err = d.store.UpdateAsset(ctx, id, markFailed)
		}
	}
	switch {
	case err != nil:
		logging.Error("Failed to record failure for asset=%s: %v (failure: %s)", id, err, detail)
	case outcome == database.Vanished:
		logging.Info("asset=%s vanished before its failure could be recorded", id)
	default:
		logging.Warn("Proxy job failed: asset=%s: %s", id, detail)
	}
}

func (d *Dispatcher) failClip(id, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	outcome, err := d.store.UpdateClip(ctx, id, func(c *database.Clip) error {
		c.Status = database.ClipFailed
		c.ErrorDetail = detail
		return nil
	})
	switch {
	case err != nil:
		logging.Error("Failed to record failure for clip=%s: %v (failure: %s)", id, err, detail)
	case outcome == database.Vanished:
		logging.Info("clip=%s vanished before its failure could be recorded", id)
	default:
		logging.Warn("Clip job failed: clip=%s: %s", id, detail)
	}
}

// discard removes an artefact whose record vanished before it could claim it.
func (d *Dispatcher) discard(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := filesystem.RemoveIfExists(p, filesystem.DefaultRetryConfig()); err != nil {
			logging.Warn("Failed to remove orphaned artefact %s: %v", p, err)
		}
	}
}
