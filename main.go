package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clipper/internal/database"
	"clipper/internal/filesystem"
	"clipper/internal/handlers"
	"clipper/internal/jobs"
	"clipper/internal/logging"
	"clipper/internal/media"
	"clipper/internal/memory"
	"clipper/internal/metrics"
	"clipper/internal/middleware"
	"clipper/internal/queue"
	"clipper/internal/retention"
	"clipper/internal/startup"
	"clipper/internal/transcoder"
	"clipper/internal/workers"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
	maxWorkers        = 16
)

func main() {
	if err := run(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.Configure(config.MemoryLimit, config.MemoryRatio)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		}
	}()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Media root
	layout, err := filesystem.NewLayout(config.MediaDir)
	if err != nil {
		startup.LogFatal("Invalid media directory: %v", err)
	}
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(layout.Volumes()))
	if err := layout.Prepare(); err != nil {
		startup.LogFatal("Failed to prepare media directory: %v", err)
	}

	// Engine
	if !startup.LogTranscoderInit(config.FFmpegPath, config.FFprobePath) {
		logging.Warn("Jobs will fail until ffmpeg and ffprobe are available")
	}
	prober := transcoder.NewProber(config.FFprobePath, config.EngineTimeout)
	invoker := transcoder.NewInvoker(transcoder.InvokerConfig{
		FFmpegPath: config.FFmpegPath,
		Timeout:    config.EngineTimeout,
		Profile:    config.ProxyProfile,
	})
	thumbnailer := media.NewThumbnailer(invoker, config.ThumbnailsEnabled)
	startup.LogThumbnailInit(thumbnailer.IsEnabled())

	// Queue
	jq, err := newQueue(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to initialize job queue: %v", err)
	}

	// Memory gate
	monitor := memory.NewMonitor(memory.DefaultMonitorConfig())
	monitor.Start()
	defer monitor.Stop()

	// Dispatcher
	workerCount := workers.Resolve(config.TranscodeWorkers, maxWorkers, workers.ForMixed(4))
	dispatcher, err := jobs.New(jobs.Config{
		Store:          db,
		Prober:         prober,
		Invoker:        invoker,
		Thumbnailer:    thumbnailer,
		Queue:          jq,
		Gate:           monitor,
		Layout:         layout,
		Policy:         config.ScalePolicy,
		Workers:        workerCount,
		JobTimeout:     config.JobTimeout,
		RecoverPending: config.RecoverPending,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize dispatcher: %v", err)
	}
	startup.LogDispatcherInit(dispatcher.Workers(), config.JobTimeout, config.RecoverPending)
	dispatcher.Start()

	// Metrics
	metrics.InitializeMetrics()
	buildInfo := startup.GetBuildInfo()
	metrics.SetAppInfo(buildInfo.Version, buildInfo.Commit, buildInfo.GoVersion)
	collector := metrics.NewCollector(db, jq, collectorInterval)
	collector.Start()
	defer collector.Stop()

	// HTTP
	router := newRouter(handlers.New(handlers.Config{
		Store:          db,
		Jobs:           dispatcher,
		Queue:          jq,
		Layout:         layout,
		PublicBaseURL:  config.PublicBaseURL,
		MaxUploadBytes: config.MaxUploadBytes,
	}))
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           wrap(router, config),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", handlers.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		startup.LogRetentionInit(config.SweepInterval, config.RetentionMaxAge)
		retention.Schedule(gctx, retention.New(db, layout), config.SweepInterval, config.RetentionMaxAge)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdown(ctx.Err() != nil, srv, metricsSrv, dispatcher, invoker, jq)
		return nil
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	return g.Wait()
}

func newQueue(ctx context.Context, config *startup.Config) (queue.Queue, error) {
	switch config.QueueBackend {
	case startup.QueueRedis:
		q, err := queue.NewRedis(ctx, queue.RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
			Key:      config.RedisQueueKey,
		})
		if err != nil {
			return nil, err
		}
		startup.LogQueueInit(config.QueueBackend, fmt.Sprintf("%s db=%d key=%s", config.RedisAddr, config.RedisDB, config.RedisQueueKey))
		return q, nil
	default:
		startup.LogQueueInit(config.QueueBackend, fmt.Sprintf("capacity %d", config.QueueSize))
		return queue.NewMemory(config.QueueSize), nil
	}
}

func newRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	h.Routes(r)
	return r
}

// wrap applies the middleware chain: request id outermost so the logger and
// handlers see it.
func wrap(router *mux.Router, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	return middleware.RequestID(middleware.Logger(loggingConfig)(router))
}

func shutdown(signalled bool, srv, metricsSrv *http.Server, dispatcher *jobs.Dispatcher, invoker *transcoder.Invoker, jq queue.Queue) {
	reason := "server error"
	if signalled {
		reason = "signal"
	}
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Stopping dispatcher")
	if err := dispatcher.Shutdown(ctx); err != nil {
		logging.Warn("Dispatcher shutdown: %v", err)
	} else {
		startup.LogShutdownStepComplete("Dispatcher stopped")
	}

	startup.LogShutdownStep("Cleaning up transcoder")
	invoker.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	if err := jq.Close(); err != nil {
		logging.Warn("Queue close error: %v", err)
	}

	startup.LogShutdownComplete()
}
